// Package embedworker turns a document's chunks into embeddings, fanning
// batches of chunks out across a static set of worker threads bound by a
// context pool, and persisting each batch as it completes.
package embedworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ragcorpus/corpus/contextpool"
	"github.com/ragcorpus/corpus/hashing"
	"github.com/ragcorpus/corpus/llm"
	"github.com/ragcorpus/corpus/store"
)

// Config controls batching and fan-out.
type Config struct {
	BatchSize  int // Chunks per inference call.
	NumThreads int // Worker threads; batches are split statically across them.
}

// DefaultConfig matches the source system's defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 10, NumThreads: 2}
}

// Worker embeds chunks using a pool of inference contexts and persists the
// resulting vectors through a Store as each batch completes.
type Worker struct {
	pool     *contextpool.Pool
	provider llm.Provider
	st       *store.Store
	cfg      Config
}

// New constructs a Worker. provider.Embed is only ever called after a
// context has been acquired from pool and released immediately after,
// matching the source system's acquire-submit-release-per-batch protocol.
func New(pool *contextpool.Pool, provider llm.Provider, st *store.Store, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	return &Worker{pool: pool, provider: provider, st: st, cfg: cfg}
}

type batch struct {
	chunks   []string
	pageNums []int
}

type threadResult struct {
	vectors      [][]float32
	vectorHashes []uint64
}

// Embed computes embeddings for chunks (with parallel pageNums) and
// persists them under fileHash as each batch completes. The returned
// slices are concatenated in worker-join order, not input order: callers
// that need input order should correlate via vectorHashes, not position.
//
// A batch failure is logged and the batch is skipped; the file as a whole
// only fails if the final vector count doesn't match len(chunks).
func (w *Worker) Embed(ctx context.Context, chunks []string, pageNums []int, fileHash string) ([][]float32, []uint64, error) {
	if len(chunks) != len(pageNums) {
		return nil, nil, fmt.Errorf("embedworker: chunks (%d) and pageNums (%d) length mismatch", len(chunks), len(pageNums))
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	batches := partitionBatches(chunks, pageNums, w.cfg.BatchSize)
	threadBatches := partitionThreads(batches, w.cfg.NumThreads)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []threadResult
	)

	for threadID, assigned := range threadBatches {
		if len(assigned) == 0 {
			continue
		}
		wg.Add(1)
		go func(threadID int, assigned []batch) {
			defer wg.Done()
			res := w.runThread(ctx, threadID, fileHash, assigned)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(threadID, assigned)
	}

	wg.Wait()

	var vectors [][]float32
	var vectorHashes []uint64
	for _, r := range results {
		vectors = append(vectors, r.vectors...)
		vectorHashes = append(vectorHashes, r.vectorHashes...)
	}

	if len(vectors) != len(chunks) {
		return vectors, vectorHashes, fmt.Errorf("embedworker: file %s produced %d vectors for %d chunks", fileHash, len(vectors), len(chunks))
	}

	return vectors, vectorHashes, nil
}

// runThread processes this thread's batches sequentially: acquire a
// context, embed, release the context, hash, persist, buffer.
func (w *Worker) runThread(ctx context.Context, threadID int, fileHash string, batches []batch) threadResult {
	var res threadResult

	for batchID, b := range batches {
		vecs, err := w.embedBatch(ctx, b.chunks)
		if err != nil {
			slog.Warn("embedworker: batch failed, continuing",
				"file_hash", fileHash, "thread", threadID, "batch", batchID, "error", err)
			continue
		}

		hashes := make([]uint64, len(vecs))
		for i, v := range vecs {
			hashes[i] = hashing.VectorHash(v)
		}

		if _, err := w.st.SaveEmbeddings(ctx, fileHash, b.chunks, vecs, hashes, b.pageNums); err != nil {
			slog.Warn("embedworker: persisting batch failed, continuing",
				"file_hash", fileHash, "thread", threadID, "batch", batchID, "error", err)
			continue
		}

		res.vectors = append(res.vectors, vecs...)
		res.vectorHashes = append(res.vectorHashes, hashes...)
	}

	return res
}

func (w *Worker) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c, err := w.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring embedding context: %w", err)
	}
	defer w.pool.Release(c)

	vecs, err := w.provider.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding batch of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// partitionBatches splits chunks into contiguous groups of at most size.
func partitionBatches(chunks []string, pageNums []int, size int) []batch {
	var batches []batch
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, batch{chunks: chunks[i:end], pageNums: pageNums[i:end]})
	}
	return batches
}

// partitionThreads splits batches statically across numThreads groups,
// each of size ceil(len(batches)/numThreads), matching the source
// system's static thread assignment rather than dynamic work-stealing.
func partitionThreads(batches []batch, numThreads int) [][]batch {
	if numThreads < 1 {
		numThreads = 1
	}
	perThread := (len(batches) + numThreads - 1) / numThreads
	if perThread == 0 {
		return nil
	}

	threads := make([][]batch, 0, numThreads)
	for i := 0; i < len(batches); i += perThread {
		end := i + perThread
		if end > len(batches) {
			end = len(batches)
		}
		threads = append(threads, batches[i:end])
	}
	return threads
}
