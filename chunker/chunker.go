// Package chunker splits a document's per-page text into overlapping,
// page-tracked chunks suitable for embedding.
package chunker

import "fmt"

// Config controls the chunking behaviour.
type Config struct {
	MaxChunkSize int // Maximum characters per chunk.
	Overlap      int // Character overlap between consecutive chunks.
}

// DefaultConfig returns the configuration used by the source system:
// MAX_CHARS_PER_BATCH=512 minus 2*OVERLAP=40 gives MAX_CHUNK_SIZE=432.
func DefaultConfig() Config {
	return Config{MaxChunkSize: 432, Overlap: 40}
}

// Chunker converts a document's page texts into overlapping chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration. Fails fast if
// MaxChunkSize does not exceed Overlap, since that configuration can
// never make forward progress.
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxChunkSize <= cfg.Overlap {
		return nil, fmt.Errorf("chunker: invalid config: MaxChunkSize (%d) must exceed Overlap (%d)", cfg.MaxChunkSize, cfg.Overlap)
	}
	return &Chunker{cfg: cfg}, nil
}

// Chunk concatenates the page texts into one stream and emits contiguous
// substrings of at most MaxChunkSize characters, advancing by
// MaxChunkSize-Overlap characters each step and overlapping neighbors by
// Overlap characters. Each chunk carries the 1-based page number of the
// page containing its start offset. Returns parallel slices of equal
// length; an empty document yields zero chunks.
func (c *Chunker) Chunk(pages []string) (chunks []string, pageNums []int) {
	var text []byte
	boundaries := make([]int, len(pages))
	offset := 0
	for i, p := range pages {
		text = append(text, p...)
		offset += len(p)
		boundaries[i] = offset
	}

	l := len(text)
	if l == 0 {
		return nil, nil
	}

	pos := 0
	for pos < l {
		end := pos + c.cfg.MaxChunkSize
		if end > l {
			end = l
		}

		chunks = append(chunks, string(text[pos:end]))
		pageNums = append(pageNums, pageForOffset(boundaries, pos))

		if end-pos > c.cfg.Overlap {
			pos = end - c.cfg.Overlap
		} else {
			pos = end
		}
	}

	return chunks, pageNums
}

// pageForOffset returns the 1-based index of the first page whose
// cumulative end offset exceeds pos.
func pageForOffset(boundaries []int, pos int) int {
	for i, b := range boundaries {
		if pos < b {
			return i + 1
		}
	}
	if len(boundaries) == 0 {
		return 1
	}
	return len(boundaries)
}
