// Package store implements the vector-capable persistence layer: document
// metadata, chunk text, and embeddings keyed by vector hash.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// HashPresentAction controls what saveEmbeddings does when a vector_hash
// being inserted already exists in the table.
type HashPresentAction string

const (
	// Upsert overwrites the existing row's content, page number and vector.
	Upsert HashPresentAction = "UPSERT"
	// DoNothing leaves the existing row untouched and silently drops the
	// new one. This is the default, matching the source system.
	DoNothing HashPresentAction = "DO_NOTHING"
)

var ErrDimensionMismatch = errors.New("store: embedding dimension mismatch")

// Document represents a row in the documents table.
type Document struct {
	FileHash  string
	Path      string
	Filename  string
	Title     string
	Author    string
	Subject   string
	Keywords  string
	Creator   string
	Producer  string
	PageCount int
}

// ContextChunk is a chunk hydrated with enough document metadata to build
// an attributed context block for chat synthesis.
type ContextChunk struct {
	VectorHash uint64
	Content    string
	PageNumber int
	FileHash   string
	Path       string
	Filename   string
	Title      string
	Author     string
	PageCount  int
	Score      float64
}

// Store wraps the SQLite database holding documents, chunks and embeddings.
type Store struct {
	db                *sql.DB
	embeddingDim      int
	hashPresentAction HashPresentAction
}

// New opens (or creates) a SQLite database at dbPath, creates the schema if
// absent, and configures a connection pool of the given size per
// DB_CONN_POOL_SIZE. hashPresentAction governs saveEmbeddings' collision
// behavior; an empty value defaults to DoNothing.
func New(dbPath string, embeddingDim int, poolSize int, hashPresentAction HashPresentAction) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if poolSize <= 0 {
		poolSize = 2
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(30 * time.Minute)

	if hashPresentAction == "" {
		hashPresentAction = DoNothing
	}

	s := &Store{db: db, embeddingDim: embeddingDim, hashPresentAction: hashPresentAction}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// SaveDocumentMetadata upserts a document row keyed by file_hash.
func (s *Store) SaveDocumentMetadata(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (file_hash, path, filename, title, author, subject, keywords, creator, producer, page_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_hash) DO UPDATE SET
			path = excluded.path,
			filename = excluded.filename,
			title = excluded.title,
			author = excluded.author,
			subject = excluded.subject,
			keywords = excluded.keywords,
			creator = excluded.creator,
			producer = excluded.producer,
			page_count = excluded.page_count,
			updated_at = CURRENT_TIMESTAMP
	`, doc.FileHash, doc.Path, doc.Filename, doc.Title, doc.Author, doc.Subject,
		doc.Keywords, doc.Creator, doc.Producer, doc.PageCount)
	if err != nil {
		return fmt.Errorf("saving document metadata: %w", err)
	}
	return nil
}

// GetDocumentByHash retrieves a document by its file hash.
func (s *Store) GetDocumentByHash(ctx context.Context, fileHash string) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT file_hash, path, filename, title, author, subject, keywords, creator, producer, page_count
		FROM documents WHERE file_hash = ?
	`, fileHash).Scan(&doc.FileHash, &doc.Path, &doc.Filename, &doc.Title, &doc.Author,
		&doc.Subject, &doc.Keywords, &doc.Creator, &doc.Producer, &doc.PageCount)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveEmbeddings inserts chunk text and embeddings for a file_hash. On a
// vector_hash collision with an existing row, behavior follows the store's
// configured HashPresentAction. Returns the number of rows actually
// inserted or updated.
func (s *Store) SaveEmbeddings(ctx context.Context, fileHash string, chunks []string, vectors [][]float32, vectorHashes []uint64, pageNums []int) (int, error) {
	if len(chunks) != len(vectors) || len(chunks) != len(vectorHashes) || len(chunks) != len(pageNums) {
		return 0, fmt.Errorf("store: saveEmbeddings: mismatched slice lengths")
	}

	written := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range chunks {
			if len(vectors[i]) != s.embeddingDim {
				return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vectors[i]), s.embeddingDim)
			}

			var exists bool
			if err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM chunks WHERE vector_hash = ?)", int64(vectorHashes[i])).Scan(&exists); err != nil {
				return err
			}

			if exists {
				if s.hashPresentAction == DoNothing {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					"UPDATE chunks SET content = ?, page_number = ?, file_hash = ? WHERE vector_hash = ?",
					chunks[i], pageNums[i], fileHash, int64(vectorHashes[i])); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx,
					"UPDATE vec_chunks SET embedding = ? WHERE vector_hash = ?",
					serializeFloat32(vectors[i]), int64(vectorHashes[i])); err != nil {
					return err
				}
				written++
				continue
			}

			if _, err := tx.ExecContext(ctx,
				"INSERT INTO chunks (file_hash, vector_hash, content, page_number) VALUES (?, ?, ?, ?)",
				fileHash, int64(vectorHashes[i]), chunks[i], pageNums[i]); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_chunks (vector_hash, embedding) VALUES (?, ?)",
				int64(vectorHashes[i]), serializeFloat32(vectors[i])); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	return written, err
}

// DeleteEmbeddings removes every chunk and embedding row for a file_hash.
// Replace semantics: called unconditionally before re-ingesting a file.
func (s *Store) DeleteEmbeddings(ctx context.Context, fileHash string) (bool, error) {
	var affected int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE vector_hash IN (
				SELECT vector_hash FROM chunks WHERE file_hash = ?
			)`, fileHash); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_hash = ?", fileHash)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected > 0, err
}

// SearchSimilarVectors returns the top-k chunks by cosine similarity to
// query, joined with their document metadata, tie-broken by vector_hash
// ascending.
func (s *Store) SearchSimilarVectors(ctx context.Context, query []float32, k int) ([]ContextChunk, error) {
	if len(query) != s.embeddingDim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(query), s.embeddingDim)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.vector_hash, v.distance,
			c.content, c.page_number, c.file_hash,
			d.path, d.filename, d.title, d.author, d.page_count
		FROM vec_chunks v
		JOIN chunks c ON c.vector_hash = v.vector_hash
		JOIN documents d ON d.file_hash = c.file_hash
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance ASC, v.vector_hash ASC
	`, serializeFloat32(query), k)
	if err != nil {
		return nil, fmt.Errorf("searching similar vectors: %w", err)
	}
	defer rows.Close()

	var results []ContextChunk
	for rows.Next() {
		var cc ContextChunk
		var vectorHash int64
		var distance float64
		if err := rows.Scan(&vectorHash, &distance,
			&cc.Content, &cc.PageNumber, &cc.FileHash,
			&cc.Path, &cc.Filename, &cc.Title, &cc.Author, &cc.PageCount); err != nil {
			return nil, err
		}
		cc.VectorHash = uint64(vectorHash)
		cc.Score = 1.0 - distance // distance_metric=cosine: distance is 1 - cosine similarity
		results = append(results, cc)
	}
	return results, rows.Err()
}

// GetChunksByHashes hydrates a set of vector hashes (typically returned by
// the accelerated search engine) into chunks with document metadata.
// Hashes with no matching row are simply absent from the result, not an
// error: the caller is expected to log and skip them.
func (s *Store) GetChunksByHashes(ctx context.Context, hashes []uint64) (map[uint64]ContextChunk, error) {
	result := make(map[uint64]ContextChunk, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	query := "SELECT c.vector_hash, c.content, c.page_number, c.file_hash, d.path, d.filename, d.title, d.author, d.page_count" +
		" FROM chunks c JOIN documents d ON d.file_hash = c.file_hash" +
		" WHERE c.vector_hash IN (?" + repeatPlaceholders(len(hashes)-1) + ")"

	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		args[i] = int64(h)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hydrating chunks by hash: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc ContextChunk
		var vectorHash int64
		if err := rows.Scan(&vectorHash, &cc.Content, &cc.PageNumber, &cc.FileHash,
			&cc.Path, &cc.Filename, &cc.Title, &cc.Author, &cc.PageCount); err != nil {
			return nil, err
		}
		cc.VectorHash = uint64(vectorHash)
		result[cc.VectorHash] = cc
	}
	return result, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
