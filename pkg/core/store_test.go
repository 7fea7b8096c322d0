package core

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder maps text to a bag of hashed words so similar texts land close.
type wordEmbedder struct {
	dim   int
	calls int
	fail  error
	delay time.Duration
	mu    sync.Mutex
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	time.Sleep(e.delay)
	if e.fail != nil {
		return nil, e.fail
	}
	vec := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	return vec, nil
}

func (e *wordEmbedder) Dim() int { return e.dim }

func (e *wordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.IndexPath = filepath.Join(dir, "brain.index")
	cfg.MetaPath = filepath.Join(dir, "brain_meta.json")
	cfg.KnowledgeDir = filepath.Join(dir, "knowledge_base")
	return cfg
}

func TestNewValidatesConfig(t *testing.T) {
	emb := &wordEmbedder{dim: 8}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing index path", func(c *Config) { c.IndexPath = "" }},
		{"dimension disagrees with embedder", func(c *Config) { c.Dimensions = 4 }},
		{"overlap not below size", func(c *Config) { c.ChunkSize = 10; c.ChunkOverlap = 10 }},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := New(cfg, emb)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := New(testConfig(t), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenEmptyStore(t *testing.T) {
	ctx := context.Background()
	emb := &wordEmbedder{dim: 16}

	s, err := Open(ctx, testConfig(t), emb)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 16, s.Dim())

	got, err := s.Retrieve(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, emb.callCount(), "empty store must not embed the query")
}

func TestAddRetrieveAndPersist(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	emb := &wordEmbedder{dim: 64}

	s, err := Open(ctx, cfg, emb)
	require.NoError(t, err)

	texts := []string{
		"rust ownership and borrowing rules",
		"python garbage collection",
		"golang goroutines and channels",
	}
	for _, text := range texts {
		require.NoError(t, s.Add(ctx, text))
	}
	require.NoError(t, s.Save())
	assert.True(t, s.Contains(texts[1]))
	assert.False(t, s.Contains("python"))

	got, err := s.Retrieve(ctx, "golang goroutines and channels", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{texts[2]}, got)

	results, err := s.Search(ctx, "rust ownership and borrowing rules", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].Position)
	assert.Equal(t, float32(0), results[0].Distance)

	// Reopen and check the same retrieval results come back.
	reopened, err := Open(ctx, cfg, emb)
	require.NoError(t, err)
	assert.Equal(t, texts, reopened.Texts())

	again, err := reopened.Search(ctx, "rust ownership and borrowing rules", 10)
	require.NoError(t, err)
	assert.Equal(t, results, again)

	stats := reopened.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 64, stats.Dimensions)
	assert.Equal(t, "flat", stats.Index["type"])
	assert.Equal(t, 3, stats.Index["size"])
}

func TestRetrieveTieBreakIsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t), &wordEmbedder{dim: 32})
	require.NoError(t, err)

	// Same words, different order: identical vectors.
	require.NoError(t, s.Add(ctx, "alpha beta"))
	require.NoError(t, s.Add(ctx, "beta alpha"))

	got, err := s.Retrieve(ctx, "alpha beta", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha beta"}, got)
}

func TestLoadCorruptStore(t *testing.T) {
	ctx := context.Background()
	emb := &wordEmbedder{dim: 8}

	t.Run("metadata without index", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.MetaPath, []byte(`["a"]`), 0o644))
		_, err := Open(ctx, cfg, emb)
		assert.ErrorIs(t, err, ErrCorruptStore)
	})

	t.Run("index without metadata", func(t *testing.T) {
		cfg := testConfig(t)
		s, err := Open(ctx, cfg, emb)
		require.NoError(t, err)
		require.NoError(t, s.AddAndSave(ctx, "hello world"))
		require.NoError(t, os.Remove(cfg.MetaPath))

		_, err = Open(ctx, cfg, emb)
		assert.ErrorIs(t, err, ErrCorruptStore)
	})

	t.Run("length mismatch", func(t *testing.T) {
		cfg := testConfig(t)
		s, err := Open(ctx, cfg, emb)
		require.NoError(t, err)
		require.NoError(t, s.AddAndSave(ctx, "hello world"))
		require.NoError(t, os.WriteFile(cfg.MetaPath, []byte(`["a","b"]`), 0o644))

		_, err = Open(ctx, cfg, emb)
		assert.ErrorIs(t, err, ErrCorruptStore)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		cfg := testConfig(t)
		s, err := Open(ctx, cfg, emb)
		require.NoError(t, err)
		require.NoError(t, s.AddAndSave(ctx, "hello world"))

		_, err = Open(ctx, cfg, &wordEmbedder{dim: 4})
		assert.ErrorIs(t, err, ErrCorruptStore)
	})

	t.Run("garbage index", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.IndexPath, []byte("garbage"), 0o644))
		require.NoError(t, os.WriteFile(cfg.MetaPath, []byte(`[]`), 0o644))
		_, err := Open(ctx, cfg, emb)
		assert.ErrorIs(t, err, ErrCorruptStore)
	})
}

func TestEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	emb := &wordEmbedder{dim: 8}
	s, err := Open(ctx, testConfig(t), emb)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, "seed"))

	emb.fail = errors.New("backend down")

	err = s.Add(ctx, "next")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, 1, s.Len(), "failed add must not change the store")

	_, err = s.Retrieve(ctx, "seed", 1)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "retrieve", storeErr.Op)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t), &wordEmbedder{dim: 8})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Add(ctx, "x"), ErrStoreClosed)
	assert.ErrorIs(t, s.Save(), ErrStoreClosed)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t), &wordEmbedder{dim: 16})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Add(ctx, strings.Repeat("w", i+1)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
	assert.Equal(t, 20, s.index.Size())
}
