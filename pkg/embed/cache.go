package embed

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/liliang-cn/mscp/pkg/core"
)

// DefaultCacheBytes bounds the memory held by a Cached embedder.
const DefaultCacheBytes = 64 << 20

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Cached wraps another embedder and caches results by exact text.
// Admission is probabilistic, so a Set may be dropped under pressure.
type Cached struct {
	embedder core.Embedder
	cache    *ristretto.Cache
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewCached creates a cache of roughly maxBytes in front of embedder.
// maxBytes <= 0 selects DefaultCacheBytes.
func NewCached(embedder core.Embedder, maxBytes int64) (*Cached, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	// Ristretto recommends 10x the expected item count in counters.
	items := maxBytes / int64(4*max(embedder.Dim(), 1))
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: max(items*10, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cached{embedder: embedder, cache: cache}, nil
}

// Embed returns a cached embedding if available, otherwise computes and caches it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return clone(v.([]float32)), nil
	}
	c.misses.Add(1)

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, clone(vec), int64(4*len(vec)))
	return vec, nil
}

// Dim returns the wrapped embedder's dimension.
func (c *Cached) Dim() int {
	return c.embedder.Dim()
}

// Wait blocks until buffered writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Stats returns hit and miss counts.
func (c *Cached) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
