// Package retrieval implements query-time retrieval: embed the user's
// query, consult the accelerated vector engine over a corpus's cache
// files, fall back to the database when the engine finds nothing, hydrate
// hashes into attributed chunks, and synthesize a chat response.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ragcorpus/corpus/contextpool"
	"github.com/ragcorpus/corpus/llm"
	"github.com/ragcorpus/corpus/store"
	"github.com/ragcorpus/corpus/vecengine"
)

// KSimilarChunksToRetrieve is the default number of chunks retrieved per
// query.
const KSimilarChunksToRetrieve = 3

// RagResult is the outcome of a single queryRag call.
type RagResult struct {
	Response                string
	ContextChunks           []store.ContextChunk
	ReferencedDocumentCount int
}

// Retriever wires the embedding provider, chat provider, context pools and
// database together to answer queries.
type Retriever struct {
	store     *store.Store
	embedPool *contextpool.Pool
	chatPool  *contextpool.Pool
	embedder  llm.Provider
	chatLLM   llm.Provider
	k         int
}

// New constructs a Retriever. embedPool and chatPool bound concurrent
// inference calls; pass nil pools to call providers directly (useful in
// tests).
func New(st *store.Store, embedPool, chatPool *contextpool.Pool, embedder, chatLLM llm.Provider, k int) *Retriever {
	if k <= 0 {
		k = KSimilarChunksToRetrieve
	}
	return &Retriever{store: st, embedPool: embedPool, chatPool: chatPool, embedder: embedder, chatLLM: chatLLM, k: k}
}

// QueryRag embeds userQuery, retrieves the k most similar chunks from
// corpusDir's vector cache files (falling back to the database if the
// accelerated engine finds nothing), and asks the chat model to answer
// userQuery using the retrieved chunks as context.
func (r *Retriever) QueryRag(ctx context.Context, userQuery, corpusDir string) (*RagResult, error) {
	query, err := r.embedQuery(ctx, userQuery)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding query: %w", err)
	}
	if len(query) != r.store.EmbeddingDim() {
		return nil, fmt.Errorf("retrieval: %w: got %d want %d", store.ErrDimensionMismatch, len(query), r.store.EmbeddingDim())
	}

	chunks, err := r.retrieveChunks(ctx, corpusDir, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: retrieving chunks: %w", err)
	}

	promptContext := buildContext(chunks)

	response, err := r.chat(ctx, promptContext, userQuery)
	if err != nil {
		return nil, fmt.Errorf("retrieval: chat synthesis: %w", err)
	}

	return &RagResult{
		Response:                response,
		ContextChunks:           chunks,
		ReferencedDocumentCount: countDistinctDocuments(chunks),
	}, nil
}

// retrieveChunks consults the accelerated engine over corpusDir's cache
// files first; if it returns nothing, falls back to the database's
// similarity search, which returns already-hydrated chunks.
func (r *Retriever) retrieveChunks(ctx context.Context, corpusDir string, query []float32) ([]store.ContextChunk, error) {
	matches, err := vecengine.Retrieve(ctx, corpusDir, query, r.k)
	if err != nil {
		return nil, fmt.Errorf("accelerated engine: %w", err)
	}
	if len(matches) == 0 {
		return r.store.SearchSimilarVectors(ctx, query, r.k)
	}

	matches = topKByScore(matches, r.k)

	hashes := make([]uint64, len(matches))
	for i, m := range matches {
		hashes[i] = m.VectorHash
	}

	hydrated, err := r.store.GetChunksByHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("hydrating chunks: %w", err)
	}

	chunks := make([]store.ContextChunk, 0, len(matches))
	for _, m := range matches {
		c, ok := hydrated[m.VectorHash]
		if !ok {
			slog.Warn("retrieval: no database row for vector hash, skipping", "vector_hash", m.VectorHash)
			continue
		}
		c.Score = m.Score
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// topKByScore keeps the k highest-scoring matches, ascending vector hash
// as tiebreaker.
func topKByScore(matches []vecengine.Match, k int) []vecengine.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].VectorHash < matches[j].VectorHash
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.embedPool == nil {
		vecs, err := r.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}

	c, err := r.embedPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring embedding context: %w", err)
	}
	defer r.embedPool.Release(c)

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	return vecs[0], nil
}

func (r *Retriever) chat(ctx context.Context, systemContext, userQuery string) (string, error) {
	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemContext},
			{Role: "user", Content: userQuery},
		},
	}

	if r.chatPool == nil {
		resp, err := r.chatLLM.Chat(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	c, err := r.chatPool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquiring chat context: %w", err)
	}
	defer r.chatPool.Release(c)

	resp, err := r.chatLLM.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// buildContext concatenates an attribution header and the chunk text for
// each chunk, separated by blank lines.
func buildContext(chunks []store.ContextChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(attributionHeader(c))
		b.WriteString("\n")
		b.WriteString(c.Content)
	}
	return b.String()
}

// attributionHeader builds a short "title | filename" source line with
// optional author, page count, and page number.
func attributionHeader(c store.ContextChunk) string {
	title := c.Title
	if title == "" {
		title = c.Filename
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s | %s", title, c.Filename)
	if c.Author != "" {
		fmt.Fprintf(&b, ", by %s", c.Author)
	}
	if c.PageCount > 0 {
		fmt.Fprintf(&b, ", %d pages", c.PageCount)
	}
	fmt.Fprintf(&b, ", page %d]", c.PageNumber)
	return b.String()
}

// countDistinctDocuments returns the cardinality of distinct (path ∪
// filename) values across chunks, matching the source system's document
// attribution rule.
func countDistinctDocuments(chunks []store.ContextChunk) int {
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		key := c.Path
		if key == "" {
			key = c.Filename
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}
