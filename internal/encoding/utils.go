package encoding

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// IndexMagic identifies a vector index file written by WriteIndex.
const IndexMagic = "MSCPVEC1"

// MaxDim bounds the dimension accepted by ReadIndex.
const MaxDim = 1 << 16

var (
	// ErrInvalidVector is returned when a vector is invalid
	ErrInvalidVector = errors.New("invalid vector")

	// ErrBadMagic is returned when an index file does not start with IndexMagic
	ErrBadMagic = errors.New("not a vector index file")

	// ErrTruncated is returned when an index file ends before its declared size
	ErrTruncated = errors.New("truncated vector index file")
)

// IndexHeader describes the layout of a vector index file.
type IndexHeader struct {
	Dim   int
	Count int
}

// WriteIndex writes vectors as: magic, uint32 dim, uint32 count, then count*dim
// little-endian float32 values. Every vector must have length dim.
func WriteIndex(w io.Writer, dim int, vectors [][]float32) error {
	if dim < 0 || uint64(dim) > math.MaxUint32 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	if uint64(len(vectors)) > math.MaxUint32 {
		return fmt.Errorf("too many vectors: %d", len(vectors))
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(IndexMagic); err != nil {
		return fmt.Errorf("failed to write magic: %w", err)
	}

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(dim))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(vectors)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	buf := make([]byte, 4*dim)
	for i, vec := range vectors {
		if len(vec) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d: %w", i, len(vec), dim, ErrInvalidVector)
		}
		for j, val := range vec {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(val))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("failed to write vector %d: %w", i, err)
		}
	}

	return bw.Flush()
}

// ReadIndex reads a file produced by WriteIndex.
func ReadIndex(r io.Reader) (IndexHeader, [][]float32, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(IndexMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return IndexHeader{}, nil, ErrBadMagic
	}
	if string(magic) != IndexMagic {
		return IndexHeader{}, nil, ErrBadMagic
	}

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return IndexHeader{}, nil, ErrTruncated
	}
	h := IndexHeader{
		Dim:   int(binary.LittleEndian.Uint32(hdr[0:4])),
		Count: int(binary.LittleEndian.Uint32(hdr[4:8])),
	}
	if h.Dim > MaxDim {
		return h, nil, fmt.Errorf("dimension %d exceeds %d: %w", h.Dim, MaxDim, ErrInvalidVector)
	}

	vectors := make([][]float32, 0, min(h.Count, 4096))
	buf := make([]byte, 4*h.Dim)
	for i := 0; i < h.Count; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return h, nil, fmt.Errorf("vector %d: %w", i, ErrTruncated)
		}
		vec := make([]float32, h.Dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		vectors = append(vectors, vec)
	}

	return h, vectors, nil
}

// EncodeTexts encodes the metadata sequence as a JSON array.
func EncodeTexts(w io.Writer, texts []string) error {
	if texts == nil {
		texts = []string{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(texts); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return nil
}

// DecodeTexts decodes a JSON array written by EncodeTexts.
func DecodeTexts(r io.Reader) ([]string, error) {
	var texts []string
	if err := json.NewDecoder(r).Decode(&texts); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if texts == nil {
		texts = []string{}
	}
	return texts, nil
}

// ValidateVector rejects nil, empty, NaN and infinite vectors.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}

	for _, val := range vector {
		if val != val { // NaN check
			return ErrInvalidVector
		}
		if math.IsInf(float64(val), 0) {
			return ErrInvalidVector
		}
	}

	return nil
}

// WriteFileAtomic writes to a temp file in the same directory, fsyncs it and
// renames it over path.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	return os.Rename(tmpName, path)
}
