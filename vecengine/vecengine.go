// Package vecengine implements the "accelerated vector engine" external
// interface described for the corpus: given a corpus directory full of
// .vecdump cache files, find the top-K chunks most similar to a query
// vector without touching the database. It loads every cache file into an
// ephemeral in-memory sqlite-vec table and lets vec0 do the search, which
// keeps the scoring logic identical to the database fallback path.
package vecengine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ragcorpus/corpus/vecdump"
)

func init() {
	sqlite_vec.Auto()
}

// Match is one (hash, score) result from a Retrieve call.
type Match struct {
	VectorHash uint64
	Score      float64
}

// Retrieve scans every *.vecdump file in corpusDir's _vecdumps
// subdirectory and returns the top-k
// matches for query by cosine similarity, ties broken by ascending vector
// hash. Returns an empty, non-error slice if corpusDir has no cache files,
// so callers can fall back to the database.
func Retrieve(ctx context.Context, corpusDir string, query []float32, k int) ([]Match, error) {
	dumpsDir := filepath.Join(corpusDir, "_vecdumps")
	entries, err := os.ReadDir(dumpsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vecengine: reading %s: %w", dumpsDir, err)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("vecengine: opening in-memory db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE arena USING vec0(vector_hash INTEGER PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		len(query))); err != nil {
		return nil, fmt.Errorf("vecengine: creating arena table: %w", err)
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".vecdump" {
			continue
		}
		if err := loadFile(ctx, db, filepath.Join(dumpsDir, e.Name()), len(query)); err != nil {
			return nil, fmt.Errorf("vecengine: loading %s: %w", e.Name(), err)
		}
		loaded++
	}
	if loaded == 0 {
		return nil, nil
	}

	queryBlob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("vecengine: serializing query vector: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT vector_hash, distance
		FROM arena
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance ASC, vector_hash ASC
	`, queryBlob, k)
	if err != nil {
		return nil, fmt.Errorf("vecengine: searching arena: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var hash int64
		var distance float64
		if err := rows.Scan(&hash, &distance); err != nil {
			return nil, fmt.Errorf("vecengine: scanning result: %w", err)
		}
		matches = append(matches, Match{VectorHash: uint64(hash), Score: 1.0 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecengine: reading results: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].VectorHash < matches[j].VectorHash
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func loadFile(ctx context.Context, db *sql.DB, path string, wantDims int) error {
	r, err := vecdump.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if r.Dims != 0 && r.Dims != wantDims {
		return fmt.Errorf("dimension mismatch: file has %d, query has %d", r.Dims, wantDims)
	}

	hashes, vectors := r.All()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO arena(vector_hash, embedding) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, h := range hashes {
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, int64(h), blob); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
