// Package hashing computes the two identity keys the corpus engine uses
// to detect duplicate files and to key embeddings across the database and
// the on-disk vector cache files.
package hashing

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
)

// FileHash returns the MD5 hex digest of a file's contents. This is the
// corpus engine's document identity: two files with identical bytes are
// the same document regardless of path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing: opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing: reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileHashBytes returns the MD5 hex digest of an in-memory byte slice,
// equivalent to FileHash for data already read into memory.
func FileHashBytes(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}

// VectorHash returns the cross-store identity key for an embedding: the
// MD5 digest of the vector's little-endian float32 bytes, folded to a
// uint64 by reading the first 8 hash bytes as little-endian. The same
// vector hashes identically whether looked up in the database or in a
// vector cache file, since both encode vectors as little-endian float32
// arrays.
func VectorHash(vec []float32) uint64 {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	sum := md5.Sum(buf)
	return binary.LittleEndian.Uint64(sum[:8])
}
