// Package ragcorpus is the top-level entry point for the local
// retrieval-augmented-generation corpus engine: it wires together document
// parsing, chunking, embedding, persistence, vector caching and query
// retrieval into a single service.
package ragcorpus

import (
	"os"
	"strconv"

	"github.com/ragcorpus/corpus/contextpool"
	"github.com/ragcorpus/corpus/embedworker"
	"github.com/ragcorpus/corpus/ingest"
	"github.com/ragcorpus/corpus/llm"
	"github.com/ragcorpus/corpus/store"
)

// Config holds all configuration for the corpus engine, matching the
// source system's environment-variable surface.
type Config struct {
	// DBPath is the SQLite database file path. Default: "tldr.db".
	DBPath string `json:"db_path" yaml:"db_path"`

	// CorpusDir is the directory consulted by QueryRag; the vector cache
	// files in its _vecdumps subdirectory are searched. AddCorpus does not
	// read this field: it uses the path it is given as the corpus directory.
	CorpusDir string `json:"corpus_dir" yaml:"corpus_dir"`

	Chat      llm.Config `json:"chat" yaml:"chat"`
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	// Chunking
	MaxChunkSize int `json:"max_chunk_size" yaml:"max_chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Embedding dimension; must match the embedding model's output size.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// DBConnPoolSize bounds concurrent database connections.
	DBConnPoolSize int `json:"db_conn_pool_size" yaml:"db_conn_pool_size"`
	// DBHashPresentAction controls saveEmbeddings' collision behavior.
	DBHashPresentAction store.HashPresentAction `json:"db_hash_present_action" yaml:"db_hash_present_action"`

	// Embedding context pool bounds.
	EmbeddingMinContexts int `json:"embedding_min_contexts" yaml:"embedding_min_contexts"`
	EmbeddingMaxContexts int `json:"embedding_max_contexts" yaml:"embedding_max_contexts"`

	// Chat context pool bounds.
	ChatMinContexts int `json:"chat_min_contexts" yaml:"chat_min_contexts"`
	ChatMaxContexts int `json:"chat_max_contexts" yaml:"chat_max_contexts"`

	// Ingestion concurrency.
	BatchSize          int                 `json:"batch_size" yaml:"batch_size"`
	EmbProcNumThreads  int                 `json:"emb_proc_num_threads" yaml:"emb_proc_num_threads"`
	AddCorpusNThreads  int                 `json:"add_corpus_n_threads" yaml:"add_corpus_n_threads"`
	CorpusFileProcType ingest.FileProcType `json:"corpus_file_proc_type" yaml:"corpus_file_proc_type"`

	// KSimilarChunksToRetrieve bounds query-time chunk retrieval.
	KSimilarChunksToRetrieve int `json:"k_similar_chunks_to_retrieve" yaml:"k_similar_chunks_to_retrieve"`
}

// DefaultConfig returns a Config with the source system's documented
// defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:    "tldr.db",
		CorpusDir: "corpus",
		Chat: llm.Config{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: llm.Config{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		MaxChunkSize:             432,
		ChunkOverlap:             40,
		EmbeddingDim:             384,
		DBConnPoolSize:           2,
		DBHashPresentAction:      store.DoNothing,
		EmbeddingMinContexts:     4,
		EmbeddingMaxContexts:     6,
		ChatMinContexts:          1,
		ChatMaxContexts:          2,
		BatchSize:                10,
		EmbProcNumThreads:        2,
		AddCorpusNThreads:        3,
		CorpusFileProcType:       ingest.Sequential,
		KSimilarChunksToRetrieve: 3,
	}
}

// ApplyEnv overrides cfg's fields from RAGCORPUS_* environment variables
// when set, matching the source system's env-var configuration surface.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv("RAGCORPUS_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("RAGCORPUS_CORPUS_DIR"); v != "" {
		c.CorpusDir = v
	}
	if v := os.Getenv("RAGCORPUS_MAX_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxChunkSize = n
		}
	}
	if v := os.Getenv("RAGCORPUS_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChunkOverlap = n
		}
	}
	if v := os.Getenv("RAGCORPUS_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.EmbeddingDim = n
		}
	}
	if v := os.Getenv("RAGCORPUS_DB_CONN_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DBConnPoolSize = n
		}
	}
	if v := os.Getenv("RAGCORPUS_DB_HASH_PRESENT_ACTION"); v != "" {
		c.DBHashPresentAction = store.HashPresentAction(v)
	}
	if v := os.Getenv("RAGCORPUS_ADD_CORPUS_N_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AddCorpusNThreads = n
		}
	}
	if v := os.Getenv("RAGCORPUS_EMB_PROC_NUM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.EmbProcNumThreads = n
		}
	}
	if v := os.Getenv("RAGCORPUS_CORPUS_FILE_PROC_TYPE"); v != "" {
		c.CorpusFileProcType = ingest.FileProcType(v)
	}
	if v := os.Getenv("RAGCORPUS_K_SIMILAR_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KSimilarChunksToRetrieve = n
		}
	}
	return c
}

func (c Config) contextPoolConfig() (embed, chat contextpool.Config) {
	return contextpool.Config{MinSize: c.EmbeddingMinContexts, MaxSize: c.EmbeddingMaxContexts},
		contextpool.Config{MinSize: c.ChatMinContexts, MaxSize: c.ChatMaxContexts}
}

func (c Config) embedWorkerConfig() embedworker.Config {
	return embedworker.Config{BatchSize: c.BatchSize, NumThreads: c.EmbProcNumThreads}
}

func (c Config) ingestConfig() ingest.Config {
	return ingest.Config{NThreads: c.AddCorpusNThreads, FileProcType: c.CorpusFileProcType}
}
