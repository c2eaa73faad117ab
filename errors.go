package ragcorpus

import (
	"errors"

	"github.com/ragcorpus/corpus/ingest"
	"github.com/ragcorpus/corpus/retrieval"
	"github.com/ragcorpus/corpus/store"
)

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("ragcorpus: invalid configuration")

	// ErrCorpusDirRequired is returned when no corpus directory is
	// configured.
	ErrCorpusDirRequired = errors.New("ragcorpus: corpus directory required")

	// ErrEmbeddingDimensionMismatch is returned when a query or stored
	// embedding's dimension does not match the store's configured
	// dimension, re-exported from the store package so callers can use
	// errors.Is against a single sentinel regardless of which layer
	// detected the mismatch.
	ErrEmbeddingDimensionMismatch = store.ErrDimensionMismatch

	// ErrNotImplemented is returned by stub operations such as DeleteCorpus.
	ErrNotImplemented = errors.New("ragcorpus: not implemented")
)

// WorkResult is the uniform outcome wrapper for a single file's ingestion,
// re-exported from the ingest package so callers only need to import the
// top-level ragcorpus package.
type WorkResult = ingest.WorkResult

// RagResult is the outcome of a single QueryRag call, re-exported from the
// retrieval package.
type RagResult = retrieval.RagResult
