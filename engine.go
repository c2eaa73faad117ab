package ragcorpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragcorpus/corpus/chunker"
	"github.com/ragcorpus/corpus/contextpool"
	"github.com/ragcorpus/corpus/embedworker"
	"github.com/ragcorpus/corpus/ingest"
	"github.com/ragcorpus/corpus/llm"
	"github.com/ragcorpus/corpus/parser"
	"github.com/ragcorpus/corpus/retrieval"
	"github.com/ragcorpus/corpus/store"
)

// Engine is the main entry point for the corpus engine.
type Engine struct {
	cfg       Config
	store     *store.Store
	chatLLM   llm.Provider
	embedLLM  llm.Provider
	embedPool *contextpool.Pool
	chatPool  *contextpool.Pool
	orch      *ingest.Orchestrator
	retriever *retrieval.Retriever
}

// InitializeSystem opens the database, creates the chat and embedding
// providers and their context pools, and wires the ingestion orchestrator
// and query retriever. chatModelPath and embeddingModelPath name the
// models used by the configured providers; pass "" to use cfg's model
// fields unchanged.
func InitializeSystem(cfg Config, chatModelPath, embeddingModelPath string) (*Engine, error) {
	cfg = cfg.ApplyEnv()

	if chatModelPath != "" {
		cfg.Chat.Model = chatModelPath
	}
	if embeddingModelPath != "" {
		cfg.Embedding.Model = embeddingModelPath
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfig)
	}

	dbPath := expandPath(cfg.DBPath)
	st, err := store.New(dbPath, cfg.EmbeddingDim, cfg.DBConnPoolSize, cfg.DBHashPresentAction)
	if err != nil {
		return nil, fmt.Errorf("ragcorpus: opening store: %w", err)
	}

	chatLLM, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ragcorpus: creating chat provider: %w", err)
	}

	embedLLM, err := llm.NewProvider(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ragcorpus: creating embedding provider: %w", err)
	}

	embedPoolCfg, chatPoolCfg := cfg.contextPoolConfig()

	embedPool, err := contextpool.New(context.Background(), embedPoolCfg, providerContextCreator(embedLLM))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ragcorpus: creating embedding context pool: %w", err)
	}

	chatPool, err := contextpool.New(context.Background(), chatPoolCfg, providerContextCreator(chatLLM))
	if err != nil {
		embedPool.Shutdown()
		st.Close()
		return nil, fmt.Errorf("ragcorpus: creating chat context pool: %w", err)
	}

	c, err := chunker.New(chunker.Config{MaxChunkSize: cfg.MaxChunkSize, Overlap: cfg.ChunkOverlap})
	if err != nil {
		chatPool.Shutdown()
		embedPool.Shutdown()
		st.Close()
		return nil, fmt.Errorf("ragcorpus: creating chunker: %w", err)
	}

	worker := embedworker.New(embedPool, embedLLM, st, cfg.embedWorkerConfig())
	orch := ingest.New(&parser.PDFParser{}, c, worker, st, cfg.ingestConfig())
	retriever := retrieval.New(st, embedPool, chatPool, embedLLM, chatLLM, cfg.KSimilarChunksToRetrieve)

	return &Engine{
		cfg:       cfg,
		store:     st,
		chatLLM:   chatLLM,
		embedLLM:  embedLLM,
		embedPool: embedPool,
		chatPool:  chatPool,
		orch:      orch,
		retriever: retriever,
	}, nil
}

// AddCorpus ingests every PDF found under path (or path itself, if it is
// a single PDF file) not already present in the cache.
func (e *Engine) AddCorpus(ctx context.Context, path string) (map[string]WorkResult, error) {
	return e.orch.AddCorpus(ctx, expandPath(path))
}

// QueryRag answers userQuery using the corpus under e's configured corpus
// directory.
func (e *Engine) QueryRag(ctx context.Context, userQuery string) (*RagResult, error) {
	if e.cfg.CorpusDir == "" {
		return nil, ErrCorpusDirRequired
	}
	return e.retriever.QueryRag(ctx, userQuery, expandPath(e.cfg.CorpusDir))
}

// DeleteCorpus is a stub matching the source system, which leaves corpus
// deletion unimplemented.
func (e *Engine) DeleteCorpus(ctx context.Context, id string) error {
	return ErrNotImplemented
}

// Store returns the underlying store for diagnostic access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// CleanupSystem shuts down context pools and closes the database.
func (e *Engine) CleanupSystem() error {
	e.chatPool.Shutdown()
	e.embedPool.Shutdown()
	return e.store.Close()
}

// providerContextCreator wraps an llm.Provider as a contextpool.Creator.
// Providers in this system are stateless HTTP clients, so the "context"
// is just a handle back to the shared provider; its health check always
// passes, matching the source system's lack of a backend health probe.
func providerContextCreator(p llm.Provider) contextpool.Creator {
	return func(ctx context.Context) (contextpool.Context, error) {
		return &providerContext{provider: p}, nil
	}
}

type providerContext struct {
	provider llm.Provider
}

func (c *providerContext) Healthy() bool { return true }
func (c *providerContext) Close() error  { return nil }

// expandPath expands a leading "~" to the user's home directory and any
// "$VAR" environment references, matching the source system's path
// handling at system boundaries.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}
