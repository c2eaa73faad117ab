package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Document registry with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    file_hash TEXT NOT NULL UNIQUE,
    path TEXT NOT NULL,
    filename TEXT NOT NULL,
    title TEXT,
    author TEXT,
    subject TEXT,
    keywords TEXT,
    creator TEXT,
    producer TEXT,
    page_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Chunks produced by the character-offset chunker, one row per chunk.
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    file_hash TEXT NOT NULL REFERENCES documents(file_hash) ON DELETE CASCADE,
    vector_hash INTEGER NOT NULL UNIQUE,
    content TEXT NOT NULL,
    page_number INTEGER NOT NULL
);

-- Vector embeddings via sqlite-vec, keyed by the same vector_hash used
-- in the on-disk cache files so in-memory and on-disk lookups agree.
-- distance_metric=cosine makes vec0's returned distance directly
-- convertible to the cosine similarity the fallback path is specified in.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    vector_hash INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_chunks_file_hash ON chunks(file_hash);
CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash);
`, embeddingDim)
}
