// Package ingest implements the corpus-wide ingestion orchestrator: find
// PDFs under a source path, skip ones already cached, and for the rest
// extract, chunk, embed and persist both to the database and to an
// on-disk vector cache file.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ragcorpus/corpus/chunker"
	"github.com/ragcorpus/corpus/embedworker"
	"github.com/ragcorpus/corpus/hashing"
	"github.com/ragcorpus/corpus/parser"
	"github.com/ragcorpus/corpus/store"
	"github.com/ragcorpus/corpus/vecdump"
)

// FileProcType selects whether files within a corpus are ingested one at
// a time or fanned out across NThreads.
type FileProcType string

const (
	Sequential FileProcType = "sequential"
	Parallel   FileProcType = "parallel"
)

// Config controls ingestion concurrency.
type Config struct {
	NThreads     int          // Bound on concurrent file ingestion; default 3.
	FileProcType FileProcType // Default Sequential.
}

// DefaultConfig matches the source system's defaults.
func DefaultConfig() Config {
	return Config{NThreads: 3, FileProcType: Sequential}
}

// WorkResult is the uniform outcome wrapper for a single file's ingestion.
type WorkResult struct {
	IsError       bool
	ErrorMessage  string
	ResultMessage string
}

func ok(msg string) WorkResult  { return WorkResult{ResultMessage: msg} }
func fail(err error) WorkResult { return WorkResult{IsError: true, ErrorMessage: err.Error()} }

// Orchestrator runs addCorpus over a source directory.
type Orchestrator struct {
	parser  parser.Parser
	chunker *chunker.Chunker
	worker  *embedworker.Worker
	store   *store.Store
	cfg     Config
}

// New constructs an Orchestrator.
func New(p parser.Parser, c *chunker.Chunker, w *embedworker.Worker, st *store.Store, cfg Config) *Orchestrator {
	if cfg.NThreads <= 0 {
		cfg.NThreads = 3
	}
	if cfg.FileProcType == "" {
		cfg.FileProcType = Sequential
	}
	return &Orchestrator{parser: p, chunker: c, worker: w, store: st, cfg: cfg}
}

// AddCorpus enumerates every PDF under sourcePath, skips files whose
// vector cache already exists, and ingests the rest. sourcePath also
// serves as the corpus directory: its _vecdumps subdirectory holds cache
// files. Returns one WorkResult per file, keyed by path.
func (o *Orchestrator) AddCorpus(ctx context.Context, sourcePath string) (map[string]WorkResult, error) {
	paths, err := enumeratePDFs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("ingest: enumerating %s: %w", sourcePath, err)
	}
	if len(paths) == 0 {
		return map[string]WorkResult{}, nil
	}

	hashes, err := o.hashFiles(ctx, paths)
	if err != nil {
		return nil, err
	}

	results := make(map[string]WorkResult, len(paths))
	var pending []string
	for _, p := range paths {
		if vecdump.Exists(sourcePath, hashes[p]) {
			results[p] = ok("already ingested, cache file present")
			continue
		}
		pending = append(pending, p)
	}

	if o.cfg.FileProcType == Parallel {
		o.ingestParallel(ctx, sourcePath, pending, hashes, results)
	} else {
		o.ingestSequential(ctx, sourcePath, pending, hashes, results)
	}

	return results, nil
}

func (o *Orchestrator) ingestSequential(ctx context.Context, corpusDir string, paths []string, hashes map[string]string, results map[string]WorkResult) {
	for _, p := range paths {
		results[p] = o.ingestFile(ctx, corpusDir, p, hashes[p])
	}
}

func (o *Orchestrator) ingestParallel(ctx context.Context, corpusDir string, paths []string, hashes map[string]string, results map[string]WorkResult) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.NThreads)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			r := o.ingestFile(ctx, corpusDir, p, hashes[p])
			mu.Lock()
			results[p] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-file errors are captured in results, not propagated
}

// ingestFile runs the full per-file pipeline: extract, upsert metadata,
// replace embeddings, chunk, embed, and write the cache file. A cache
// write failure is logged but does not fail the file.
func (o *Orchestrator) ingestFile(ctx context.Context, corpusDir, path, fileHash string) WorkResult {
	parsed, err := o.parser.Parse(ctx, path)
	if err != nil {
		return fail(fmt.Errorf("extracting %s: %w", path, err))
	}

	doc := store.Document{
		FileHash:  fileHash,
		Path:      path,
		Filename:  filepath.Base(path),
		Title:     parsed.Metadata.Title,
		Author:    parsed.Metadata.Author,
		Subject:   parsed.Metadata.Subject,
		Keywords:  parsed.Metadata.Keywords,
		Creator:   parsed.Metadata.Creator,
		Producer:  parsed.Metadata.Producer,
		PageCount: parsed.Metadata.PageCount,
	}
	if err := o.store.SaveDocumentMetadata(ctx, doc); err != nil {
		return fail(fmt.Errorf("saving document metadata for %s: %w", path, err))
	}

	if _, err := o.store.DeleteEmbeddings(ctx, fileHash); err != nil {
		return fail(fmt.Errorf("clearing prior embeddings for %s: %w", path, err))
	}

	chunks, pageNums := o.chunker.Chunk(parsed.Pages)
	if len(chunks) == 0 {
		return ok(fmt.Sprintf("%s: no extractable text, 0 chunks", filepath.Base(path)))
	}

	vectors, vectorHashes, err := o.worker.Embed(ctx, chunks, pageNums, fileHash)
	if err != nil {
		return fail(fmt.Errorf("embedding %s: %w", path, err))
	}
	if len(vectors) != len(chunks) {
		return fail(fmt.Errorf("%s: produced %d vectors for %d chunks", path, len(vectors), len(chunks)))
	}

	if err := vecdump.Write(corpusDir, fileHash, vectorHashes, vectors); err != nil {
		slog.Warn("ingest: writing vector cache file failed", "path", path, "file_hash", fileHash, "error", err)
	}

	return ok(fmt.Sprintf("%s: ingested %d chunks", filepath.Base(path), len(chunks)))
}

// hashFiles computes file hashes concurrently, bounded by NThreads.
func (o *Orchestrator) hashFiles(ctx context.Context, paths []string) (map[string]string, error) {
	hashes := make(map[string]string, len(paths))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.NThreads)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			h, err := hashing.FileHash(p)
			if err != nil {
				return fmt.Errorf("hashing %s: %w", p, err)
			}
			mu.Lock()
			hashes[p] = h
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// enumeratePDFs walks sourcePath (file or directory) collecting .pdf
// files, skipping the _vecdumps cache directory.
func enumeratePDFs(sourcePath string) ([]string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if strings.EqualFold(filepath.Ext(sourcePath), ".pdf") {
			return []string{sourcePath}, nil
		}
		return nil, nil
	}

	var paths []string
	err = filepath.WalkDir(sourcePath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "_vecdumps" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".pdf") {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}
