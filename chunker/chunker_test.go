package chunker

import "testing"

// TestChunkS1 covers a short two-page document whose text crosses a page
// boundary partway through the final chunk: MaxChunkSize=20, Overlap=5,
// page 1 is 30 characters and page 2 is 10. The terminal chunk [30:40] is
// itself longer than Overlap, so the advance-then-retest loop emits one
// more trailing Overlap-sized chunk [35:40], giving 4 chunks with page
// numbers [1, 1, 2, 2].
func TestChunkS1(t *testing.T) {
	c, err := New(Config{MaxChunkSize: 20, Overlap: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pages := []string{
		"012345678901234567890123456789", // 30 chars
		"abcdefghij",                     // 10 chars
	}

	chunks, pageNums := c.Chunk(pages)

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d: %v", len(chunks), chunks)
	}
	wantPages := []int{1, 1, 2, 2}
	for i, p := range pageNums {
		if p != wantPages[i] {
			t.Errorf("pageNums[%d] = %d, want %d", i, p, wantPages[i])
		}
	}
	for i, ch := range chunks {
		if len(ch) > 20 {
			t.Errorf("chunk[%d] length %d exceeds MaxChunkSize 20", i, len(ch))
		}
	}
	if chunks[2] != "abcdefghij" {
		t.Errorf("chunk[2] = %q, want %q", chunks[2], "abcdefghij")
	}
	if chunks[3] != "fghij" {
		t.Errorf("chunk[3] = %q, want %q", chunks[3], "fghij")
	}
}

func TestChunkLengthsAndPageNumsAligned(t *testing.T) {
	c, err := New(Config{MaxChunkSize: 50, Overlap: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pages := []string{
		"The quick brown fox jumps over the lazy dog. ",
		"Pack my box with five dozen liquor jugs. ",
		"How vexingly quick daft zebras jump!",
	}

	chunks, pageNums := c.Chunk(pages)

	if len(chunks) != len(pageNums) {
		t.Fatalf("len(chunks)=%d, len(pageNums)=%d, want equal", len(chunks), len(pageNums))
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for i, ch := range chunks {
		if len(ch) > 50 {
			t.Errorf("chunk[%d] length %d exceeds MaxChunkSize 50", i, len(ch))
		}
	}
	prev := 0
	for i, p := range pageNums {
		if p < prev {
			t.Errorf("pageNums[%d] = %d is less than previous %d; expected non-decreasing", i, p, prev)
		}
		prev = p
	}
	if pageNums[len(pageNums)-1] > len(pages) {
		t.Errorf("last pageNum %d exceeds page count %d", pageNums[len(pageNums)-1], len(pages))
	}
}

func TestChunkOverlap(t *testing.T) {
	c, err := New(Config{MaxChunkSize: 20, Overlap: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pages := []string{"0123456789abcdefghijklmnopqrstuvwxyz"}
	chunks, _ := c.Chunk(pages)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-5:]
		curHead := chunks[i][:5]
		if prevTail != curHead {
			t.Errorf("chunk[%d] does not overlap chunk[%d] by 5 chars: tail=%q head=%q", i-1, i, prevTail, curHead)
		}
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	c, err := New(Config{MaxChunkSize: 20, Overlap: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunks, pageNums := c.Chunk(nil)
	if len(chunks) != 0 || len(pageNums) != 0 {
		t.Fatalf("expected 0 chunks for nil pages, got %d", len(chunks))
	}

	chunks, pageNums = c.Chunk([]string{"", ""})
	if len(chunks) != 0 || len(pageNums) != 0 {
		t.Fatalf("expected 0 chunks for all-empty pages, got %d", len(chunks))
	}
}

func TestNewInvalidConfig(t *testing.T) {
	if _, err := New(Config{MaxChunkSize: 10, Overlap: 10}); err == nil {
		t.Fatal("expected error when MaxChunkSize equals Overlap")
	}
	if _, err := New(Config{MaxChunkSize: 5, Overlap: 10}); err == nil {
		t.Fatal("expected error when MaxChunkSize is less than Overlap")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxChunkSize != 432 {
		t.Errorf("MaxChunkSize = %d, want 432", cfg.MaxChunkSize)
	}
	if cfg.Overlap != 40 {
		t.Errorf("Overlap = %d, want 40", cfg.Overlap)
	}
}

// TestChunkSinglePageShorterThanMaxChunkSize covers a document that fits in
// a single MaxChunkSize window but whose length still exceeds Overlap, so
// the advance-then-retest loop emits a second, shorter trailing chunk.
func TestChunkSinglePageShorterThanMaxChunkSize(t *testing.T) {
	c, err := New(Config{MaxChunkSize: 100, Overlap: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunks, pageNums := c.Chunk([]string{"Short document."})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "Short document." {
		t.Errorf("chunk[0] = %q, want %q", chunks[0], "Short document.")
	}
	if chunks[1] != " document." {
		t.Errorf("chunk[1] = %q, want %q", chunks[1], " document.")
	}
	for _, p := range pageNums {
		if p != 1 {
			t.Errorf("pageNum = %d, want 1", p)
		}
	}
}
