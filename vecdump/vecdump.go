// Package vecdump implements the on-disk vector cache file format: a
// fixed header followed by a parallel array of vector hashes and an array
// of fixed-dimension float32 vectors. Cache files live one per document,
// named "<file-hash>.vecdump", and their mere existence marks a document
// as already ingested.
package vecdump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"syscall"
)

const (
	magic         = "VECDUMP1"
	version       = 1
	headerSize    = 64
	hashSizeBytes = 8 // uint64 per hash
)

var (
	// ErrBadMagic is returned when a file doesn't start with the expected
	// magic bytes.
	ErrBadMagic = errors.New("vecdump: bad magic")
	// ErrBadVersion is returned for a header version this package can't read.
	ErrBadVersion = errors.New("vecdump: unsupported version")
	// ErrTruncated is returned when the file is shorter than its header
	// declares it should be.
	ErrTruncated = errors.New("vecdump: file shorter than header declares")
)

// Path returns the cache file path for a file hash within a corpus's
// _vecdumps directory.
func Path(corpusDir, fileHash string) string {
	return filepath.Join(corpusDir, "_vecdumps", fileHash+".vecdump")
}

// Exists reports whether a cache file is already present for fileHash,
// which the ingestion orchestrator treats as "already ingested, skip".
func Exists(corpusDir, fileHash string) bool {
	_, err := os.Stat(Path(corpusDir, fileHash))
	return err == nil
}

// Write atomically creates (or replaces) the cache file for fileHash:
// write to a temp file, fsync, then rename over the final path so a
// reader never observes a partially-written file.
func Write(corpusDir, fileHash string, hashes []uint64, vectors [][]float32) error {
	if len(hashes) != len(vectors) {
		return fmt.Errorf("vecdump: %d hashes but %d vectors", len(hashes), len(vectors))
	}

	dir := filepath.Join(corpusDir, "_vecdumps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vecdump: creating %s: %w", dir, err)
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
		for i, v := range vectors {
			if len(v) != dims {
				return fmt.Errorf("vecdump: vector %d has %d dims, want %d", i, len(v), dims)
			}
		}
	}

	final := Path(corpusDir, fileHash)
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vecdump: creating temp file: %w", err)
	}
	defer os.Remove(tmp) // no-op once renamed

	if err := writeAll(f, hashes, vectors, dims); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("vecdump: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("vecdump: closing temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("vecdump: renaming into place: %w", err)
	}
	return nil
}

func writeAll(f *os.File, hashes []uint64, vectors [][]float32, dims int) error {
	header := make([]byte, headerSize)
	copy(header[0:8], magic)
	binary.LittleEndian.PutUint32(header[8:12], version)
	binary.LittleEndian.PutUint64(header[12:20], uint64(len(hashes)))
	binary.LittleEndian.PutUint32(header[20:24], hashSizeBytes)
	binary.LittleEndian.PutUint32(header[24:28], uint32(dims))
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("vecdump: writing header: %w", err)
	}

	hashBuf := make([]byte, 8*len(hashes))
	for i, h := range hashes {
		binary.LittleEndian.PutUint64(hashBuf[i*8:], h)
	}
	if _, err := f.Write(hashBuf); err != nil {
		return fmt.Errorf("vecdump: writing hashes: %w", err)
	}

	vecBuf := make([]byte, 4*dims*len(vectors))
	off := 0
	for _, v := range vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(vecBuf[off:], math.Float32bits(x))
			off += 4
		}
	}
	if _, err := f.Write(vecBuf); err != nil {
		return fmt.Errorf("vecdump: writing vectors: %w", err)
	}
	return nil
}

// Reader is a read-only, memory-mapped view of a vector cache file.
type Reader struct {
	data  []byte
	Dims  int
	count int
}

// Open memory-maps a cache file read-only and validates its header.
// Callers must call Close when done to release the mapping.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vecdump: opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("vecdump: stat %s: %w", path, err)
	}
	size := int(info.Size())
	if size < headerSize {
		return nil, ErrTruncated
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("vecdump: mmap %s: %w", path, err)
	}

	if string(data[0:8]) != magic {
		syscall.Munmap(data)
		return nil, ErrBadMagic
	}
	if binary.LittleEndian.Uint32(data[8:12]) != version {
		syscall.Munmap(data)
		return nil, ErrBadVersion
	}
	numEntries := binary.LittleEndian.Uint64(data[12:20])
	hashSize := binary.LittleEndian.Uint32(data[20:24])
	if hashSize != hashSizeBytes {
		syscall.Munmap(data)
		return nil, fmt.Errorf("vecdump: unexpected hash size %d", hashSize)
	}
	dims := int(binary.LittleEndian.Uint32(data[24:28]))

	wantSize := headerSize + int(numEntries)*hashSizeBytes + int(numEntries)*dims*4
	if size < wantSize {
		syscall.Munmap(data)
		return nil, ErrTruncated
	}

	return &Reader{data: data, Dims: dims, count: int(numEntries)}, nil
}

// Close unmaps the file.
func (r *Reader) Close() error {
	if r.data == nil {
		return nil
	}
	err := syscall.Munmap(r.data)
	r.data = nil
	return err
}

// Len returns the number of (hash, vector) entries in the file.
func (r *Reader) Len() int { return r.count }

// Hash returns the vector hash at index i.
func (r *Reader) Hash(i int) uint64 {
	off := headerSize + i*hashSizeBytes
	return binary.LittleEndian.Uint64(r.data[off : off+8])
}

// Vector returns the embedding at index i as a freshly allocated slice.
func (r *Reader) Vector(i int) []float32 {
	base := headerSize + r.count*hashSizeBytes + i*r.Dims*4
	out := make([]float32, r.Dims)
	for j := range out {
		off := base + j*4
		out[j] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[off : off+4]))
	}
	return out
}

// All returns every (hash, vector) pair in the file. Callers own the
// returned copies; the mapping can be closed afterward.
func (r *Reader) All() (hashes []uint64, vectors [][]float32) {
	hashes = make([]uint64, r.count)
	vectors = make([][]float32, r.count)
	for i := 0; i < r.count; i++ {
		hashes[i] = r.Hash(i)
		vectors[i] = r.Vector(i)
	}
	return hashes, vectors
}
