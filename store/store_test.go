//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4, 2, DoNothing) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDoc(hash, path string) Document {
	return Document{
		FileHash:  hash,
		Path:      path,
		Filename:  filepath.Base(path),
		Title:     "Test Document",
		Author:    "Jane Doe",
		PageCount: 3,
	}
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, 4, 2, DoNothing)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestSaveAndGetDocumentMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("hash1", "/tmp/test.pdf")
	if err := s.SaveDocumentMetadata(ctx, doc); err != nil {
		t.Fatalf("saving document metadata: %v", err)
	}

	got, err := s.GetDocumentByHash(ctx, "hash1")
	if err != nil {
		t.Fatalf("getting document by hash: %v", err)
	}
	if got.Path != doc.Path {
		t.Errorf("path: got %q, want %q", got.Path, doc.Path)
	}
	if got.Title != doc.Title {
		t.Errorf("title: got %q, want %q", got.Title, doc.Title)
	}
	if got.PageCount != 3 {
		t.Errorf("page count: got %d, want 3", got.PageCount)
	}
}

func TestSaveDocumentMetadataUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("hash2", "/tmp/update.pdf")
	if err := s.SaveDocumentMetadata(ctx, doc); err != nil {
		t.Fatalf("first save: %v", err)
	}

	doc.Title = "Renamed Title"
	doc.PageCount = 5
	if err := s.SaveDocumentMetadata(ctx, doc); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.GetDocumentByHash(ctx, "hash2")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Title != "Renamed Title" {
		t.Errorf("title not updated: got %q", got.Title)
	}
	if got.PageCount != 5 {
		t.Errorf("page count not updated: got %d", got.PageCount)
	}
}

// ---------------------------------------------------------------------------
// Embeddings
// ---------------------------------------------------------------------------

func TestSaveAndSearchSimilarVectors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("hash3", "/vec.pdf")
	if err := s.SaveDocumentMetadata(ctx, doc); err != nil {
		t.Fatalf("save doc: %v", err)
	}

	chunks := []string{"alpha content", "beta content"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	hashes := []uint64{1001, 1002}
	pages := []int{1, 2}

	n, err := s.SaveEmbeddings(ctx, "hash3", chunks, vectors, hashes, pages)
	if err != nil {
		t.Fatalf("save embeddings: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows written, got %d", n)
	}

	results, err := s.SearchSimilarVectors(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search similar vectors: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "alpha content" {
		t.Errorf("nearest result: got %q, want %q", results[0].Content, "alpha content")
	}
	if results[0].Filename != "vec.pdf" {
		t.Errorf("filename: got %q", results[0].Filename)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected nearest score (%f) > second (%f)", results[0].Score, results[1].Score)
	}
}

func TestSearchSimilarVectorsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SearchSimilarVectors(ctx, []float32{1, 0}, 1)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSaveEmbeddingsDoNothingOnCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDocumentMetadata(ctx, sampleDoc("hashA", "/a.pdf"))
	s.SaveDocumentMetadata(ctx, sampleDoc("hashB", "/b.pdf"))

	if _, err := s.SaveEmbeddings(ctx, "hashA", []string{"original"}, [][]float32{{1, 0, 0, 0}}, []uint64{42}, []int{1}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Same vector_hash under a different file; DoNothing means it's dropped.
	n, err := s.SaveEmbeddings(ctx, "hashB", []string{"replacement"}, [][]float32{{0, 1, 0, 0}}, []uint64{42}, []int{1})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows written under DoNothing, got %d", n)
	}

	chunks, err := s.GetChunksByHashes(ctx, []uint64{42})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if chunks[42].Content != "original" {
		t.Errorf("expected original content to survive, got %q", chunks[42].Content)
	}
}

func TestSaveEmbeddingsUpsertOnCollision(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4, 2, Upsert)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	s.SaveDocumentMetadata(ctx, sampleDoc("hashA", "/a.pdf"))
	s.SaveDocumentMetadata(ctx, sampleDoc("hashB", "/b.pdf"))

	if _, err := s.SaveEmbeddings(ctx, "hashA", []string{"original"}, [][]float32{{1, 0, 0, 0}}, []uint64{42}, []int{1}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	n, err := s.SaveEmbeddings(ctx, "hashB", []string{"replacement"}, [][]float32{{0, 1, 0, 0}}, []uint64{42}, []int{1})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row written under Upsert, got %d", n)
	}

	chunks, err := s.GetChunksByHashes(ctx, []uint64{42})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if chunks[42].Content != "replacement" {
		t.Errorf("expected replacement content, got %q", chunks[42].Content)
	}
	if chunks[42].FileHash != "hashB" {
		t.Errorf("expected file hash to move to hashB, got %q", chunks[42].FileHash)
	}
}

func TestDeleteEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDocumentMetadata(ctx, sampleDoc("hashC", "/c.pdf"))
	if _, err := s.SaveEmbeddings(ctx, "hashC",
		[]string{"one", "two"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]uint64{1, 2}, []int{1, 1}); err != nil {
		t.Fatalf("save embeddings: %v", err)
	}

	deleted, err := s.DeleteEmbeddings(ctx, "hashC")
	if err != nil {
		t.Fatalf("delete embeddings: %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}

	chunks, err := s.GetChunksByHashes(ctx, []uint64{1, 2})
	if err != nil {
		t.Fatalf("hydrate after delete: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected 0 chunks after delete, got %d", len(chunks))
	}
}

func TestDeleteThenSaveEmbeddingsLeavesOnlyNewRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDocumentMetadata(ctx, sampleDoc("hashD", "/d.pdf"))
	if _, err := s.SaveEmbeddings(ctx, "hashD",
		[]string{"old one", "old two"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]uint64{10, 11}, []int{1, 1}); err != nil {
		t.Fatalf("initial save: %v", err)
	}

	if _, err := s.DeleteEmbeddings(ctx, "hashD"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.SaveEmbeddings(ctx, "hashD",
		[]string{"new one"},
		[][]float32{{0, 0, 1, 0}},
		[]uint64{20}, []int{2}); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	chunks, err := s.GetChunksByHashes(ctx, []uint64{10, 11, 20})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 surviving chunk, got %d", len(chunks))
	}
	if _, ok := chunks[20]; !ok {
		t.Error("expected new hash 20 to be present")
	}
}

func TestGetChunksByHashesEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.GetChunksByHashes(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty map, got %v", result)
	}
}

func TestGetChunksByHashesMissingSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDocumentMetadata(ctx, sampleDoc("hashE", "/e.pdf"))
	if _, err := s.SaveEmbeddings(ctx, "hashE", []string{"present"}, [][]float32{{1, 0, 0, 0}}, []uint64{99}, []int{1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	result, err := s.GetChunksByHashes(ctx, []uint64{99, 100})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 hydrated chunk, got %d", len(result))
	}
	if _, ok := result[100]; ok {
		t.Error("expected hash 100 to be absent, not an error")
	}
}

func TestSaveEmbeddingsMismatchedLengths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDocumentMetadata(ctx, sampleDoc("hashF", "/f.pdf"))
	_, err := s.SaveEmbeddings(ctx, "hashF", []string{"a", "b"}, [][]float32{{1, 0, 0, 0}}, []uint64{1, 2}, []int{1, 1})
	if err == nil {
		t.Fatal("expected error for mismatched slice lengths")
	}
}
