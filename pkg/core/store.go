package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/liliang-cn/mscp/internal/encoding"
	"github.com/liliang-cn/mscp/pkg/index"
)

// VectorStore is an append-only set of (vector, text) chunks with exact
// nearest-neighbor retrieval. Identity is positional: the i-th vector belongs
// to the i-th text. All methods are safe for concurrent use; mutations are
// serialized through one writer lock.
type VectorStore struct {
	mu       sync.RWMutex
	saveMu   sync.Mutex
	ingestMu sync.Mutex
	config   Config
	embedder Embedder
	dim      int
	index    *index.FlatIndex
	texts    []string
	seen     map[string]struct{}
	closed   bool
	logger   Logger
}

// New creates an empty vector store. Call Load to read persisted state, or use Open.
func New(config Config, embedder Embedder) (*VectorStore, error) {
	if embedder == nil {
		return nil, wrapError("init", fmt.Errorf("%w: embedder is required", ErrInvalidConfig))
	}
	if config.IndexPath == "" || config.MetaPath == "" {
		return nil, wrapError("init", fmt.Errorf("%w: index and metadata paths are required", ErrInvalidConfig))
	}

	dim := config.Dimensions
	if dim == 0 {
		dim = embedder.Dim()
	}
	if dim <= 0 {
		return nil, wrapError("init", fmt.Errorf("%w: vector dimension must be positive", ErrInvalidConfig))
	}
	if embedder.Dim() > 0 && embedder.Dim() != dim {
		return nil, wrapError("init", fmt.Errorf("%w: embedder produces %d dimensions, store expects %d",
			ErrInvalidConfig, embedder.Dim(), dim))
	}

	defaults := DefaultConfig()
	if config.ChunkSize == 0 && config.ChunkOverlap == 0 {
		config.ChunkSize = defaults.ChunkSize
		config.ChunkOverlap = defaults.ChunkOverlap
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, wrapError("init", fmt.Errorf("%w: chunk overlap %d must be in [0, %d)",
			ErrInvalidConfig, config.ChunkOverlap, config.ChunkSize))
	}
	if config.Logger == nil {
		config.Logger = NopLogger()
	}

	return &VectorStore{
		config:   config,
		embedder: embedder,
		dim:      dim,
		index:    index.NewFlatIndex(dim, index.SquaredEuclideanDistance),
		texts:    []string{},
		seen:     make(map[string]struct{}),
		logger:   config.Logger.With("component", "vectorstore"),
	}, nil
}

// Open creates a vector store and loads any persisted state.
func Open(ctx context.Context, config Config, embedder Embedder) (*VectorStore, error) {
	s, err := New(config, embedder)
	if err != nil {
		return nil, err
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory state with the persisted index and metadata.
// When neither file exists the store starts empty. It fails with
// ErrCorruptStore when only one file exists, the lengths disagree, or the
// stored dimension differs from the store's.
func (s *VectorStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrapError("load", ErrStoreClosed)
	}

	indexExists, err := fileExists(s.config.IndexPath)
	if err != nil {
		return wrapError("load", err)
	}
	metaExists, err := fileExists(s.config.MetaPath)
	if err != nil {
		return wrapError("load", err)
	}

	switch {
	case !indexExists && !metaExists:
		s.reset()
		s.logger.Info("created new vector store", "dimensions", s.dim)
		return nil
	case !indexExists:
		return wrapError("load", fmt.Errorf("%w: metadata %s has no index file", ErrCorruptStore, s.config.MetaPath))
	case !metaExists:
		return wrapError("load", fmt.Errorf("%w: index %s has no metadata file", ErrCorruptStore, s.config.IndexPath))
	}

	hdr, vectors, err := readIndexFile(s.config.IndexPath)
	if err != nil {
		return wrapError("load", fmt.Errorf("%w: %w", ErrCorruptStore, err))
	}
	if hdr.Dim != s.dim {
		return wrapError("load", fmt.Errorf("%w: index dimension %d, expected %d", ErrCorruptStore, hdr.Dim, s.dim))
	}

	texts, err := readMetaFile(s.config.MetaPath)
	if err != nil {
		return wrapError("load", fmt.Errorf("%w: %w", ErrCorruptStore, err))
	}
	if len(texts) != len(vectors) {
		return wrapError("load", fmt.Errorf("%w: %d vectors but %d texts", ErrCorruptStore, len(vectors), len(texts)))
	}

	idx := index.NewFlatIndex(s.dim, index.SquaredEuclideanDistance)
	if err := idx.BatchAdd(vectors); err != nil {
		return wrapError("load", fmt.Errorf("%w: %w", ErrCorruptStore, err))
	}

	s.index = idx
	s.texts = texts
	s.seen = make(map[string]struct{}, len(texts))
	for _, t := range texts {
		s.seen[t] = struct{}{}
	}

	s.logger.Info("loaded vector store", "chunks", len(texts), "dimensions", s.dim)
	return nil
}

// Save writes the index and metadata files. Each file is written to a temp
// file, fsynced and renamed; the pair is not updated atomically as a unit.
func (s *VectorStore) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return wrapError("save", ErrStoreClosed)
	}
	vectors := s.index.Vectors()
	texts := make([]string, len(s.texts))
	copy(texts, s.texts)
	s.mu.RUnlock()

	err := encoding.WriteFileAtomic(s.config.IndexPath, func(w io.Writer) error {
		return encoding.WriteIndex(w, s.dim, vectors)
	})
	if err != nil {
		return wrapError("save", fmt.Errorf("failed to write index: %w", err))
	}

	err = encoding.WriteFileAtomic(s.config.MetaPath, func(w io.Writer) error {
		return encoding.EncodeTexts(w, texts)
	})
	if err != nil {
		return wrapError("save", fmt.Errorf("failed to write metadata: %w", err))
	}

	s.logger.Debug("saved vector store", "chunks", len(texts))
	return nil
}

// Add embeds text and appends the vector and the text together.
func (s *VectorStore) Add(ctx context.Context, text string) error {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return wrapError("add", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrapError("add", ErrStoreClosed)
	}
	if _, err := s.index.Add(vec); err != nil {
		return wrapError("add", fmt.Errorf("%w: %w", ErrDimensionMismatch, err))
	}
	s.texts = append(s.texts, text)
	s.seen[text] = struct{}{}

	return nil
}

// AddAndSave adds text and persists the store.
func (s *VectorStore) AddAndSave(ctx context.Context, text string) error {
	if err := s.Add(ctx, text); err != nil {
		return err
	}
	return s.Save()
}

// Retrieve returns up to k stored texts nearest to query, nearest first.
// An empty store yields an empty slice without calling the embedder.
func (s *VectorStore) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	results, err := s.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts, nil
}

// Search is Retrieve with positions and squared Euclidean distances.
func (s *VectorStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if s.Len() == 0 || k <= 0 {
		return []SearchResult{}, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, wrapError("retrieve", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wrapError("retrieve", ErrStoreClosed)
	}

	ids, distances, err := s.index.Search(vec, k)
	if err != nil {
		return nil, wrapError("retrieve", fmt.Errorf("%w: %w", ErrDimensionMismatch, err))
	}

	results := make([]SearchResult, len(ids))
	for i, id := range ids {
		results[i] = SearchResult{Position: id, Text: s.texts[id], Distance: distances[i]}
	}
	return results, nil
}

// Contains reports whether text is stored byte-for-byte.
func (s *VectorStore) Contains(text string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[text]
	return ok
}

// Texts returns a copy of the stored texts in insertion order.
func (s *VectorStore) Texts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// Len returns the number of stored chunks.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

// Dim returns the vector dimension of the store.
func (s *VectorStore) Dim() int {
	return s.dim
}

// Stats returns statistics about the store
func (s *VectorStore) Stats() StoreStats {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	return StoreStats{
		Count:      s.Len(),
		Dimensions: s.dim,
		IndexPath:  s.config.IndexPath,
		MetaPath:   s.config.MetaPath,
		Index:      idx.Stats(),
	}
}

// Close marks the store closed. It does not save.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *VectorStore) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if err := encoding.ValidateVector(vec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), s.dim)
	}
	return vec, nil
}

// reset must be called with mu held.
func (s *VectorStore) reset() {
	s.index = index.NewFlatIndex(s.dim, index.SquaredEuclideanDistance)
	s.texts = []string{}
	s.seen = make(map[string]struct{})
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func readIndexFile(path string) (encoding.IndexHeader, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return encoding.IndexHeader{}, nil, err
	}
	defer f.Close()
	return encoding.ReadIndex(f)
}

func readMetaFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return encoding.DecodeTexts(f)
}
