package core

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w" + strconv.Itoa(i)
	}
	return strings.Join(w, " ")
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"empty", "   \n\t ", 3, 1, nil},
		{"shorter than window", "a b", 3, 1, []string{"a b"}},
		{"overlapping windows", "a b c d e", 3, 1, []string{"a b c", "c d e", "e"}},
		{"no overlap", "a b c d", 2, 0, []string{"a b", "c d"}},
		{"whitespace normalized", "a\n\nb\tc", 5, 0, []string{"a b c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChunkText(tt.text, tt.size, tt.overlap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ChunkText("a b", 2, 2)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChunkTextDefaults(t *testing.T) {
	chunks, err := ChunkText(words(400), 200, 30)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Len(t, strings.Fields(chunks[0]), 200)
	assert.True(t, strings.HasPrefix(chunks[1], "w170 "))
	assert.True(t, strings.HasPrefix(chunks[2], "w340 "))
}

func TestIngestDedup(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.ChunkSize = 4
	cfg.ChunkOverlap = 1

	require.NoError(t, os.MkdirAll(cfg.KnowledgeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.KnowledgeDir, "a.txt"), []byte("one two three four five six"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.KnowledgeDir, "b.txt"), []byte("one two three four"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.KnowledgeDir, "notes.md"), []byte("ignored"), 0o644))

	s, err := Open(ctx, cfg, &wordEmbedder{dim: 16})
	require.NoError(t, err)

	stats, err := s.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, IngestStats{Files: 2, Chunks: 3, Added: 2, Skipped: 1}, stats)
	assert.Equal(t, []string{"one two three four", "four five six"}, s.Texts())

	// A second run adds nothing and leaves the files in place.
	stats, err = s.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 3, stats.Skipped)

	reopened, err := Open(ctx, cfg, &wordEmbedder{dim: 16})
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
}

func TestConcurrentIngestStoresEachChunkOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.ChunkSize = 10
	cfg.ChunkOverlap = 2

	require.NoError(t, os.MkdirAll(cfg.KnowledgeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.KnowledgeDir, "big.txt"), []byte(words(400)), 0o644))

	s, err := Open(ctx, cfg, &wordEmbedder{dim: 16, delay: time.Millisecond})
	require.NoError(t, err)

	var wg sync.WaitGroup
	added := make([]int, 2)
	for i := range added {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := s.Ingest(ctx, "")
			assert.NoError(t, err)
			added[i] = stats.Added
		}()
	}
	wg.Wait()

	texts := s.Texts()
	unique := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		unique[text] = struct{}{}
	}
	assert.Len(t, texts, 50)
	assert.Len(t, unique, len(texts))
	assert.Equal(t, 50, added[0]+added[1])
}

func TestIngestCreatesMissingDirectory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	s, err := Open(ctx, cfg, &wordEmbedder{dim: 8})
	require.NoError(t, err)

	stats, err := s.Ingest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, IngestStats{}, stats)
	assert.DirExists(t, cfg.KnowledgeDir)

	_, err = os.Stat(cfg.IndexPath)
	assert.True(t, os.IsNotExist(err), "nothing added, nothing saved")
}

func TestWatcherReingests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.KnowledgeDir, 0o755))

	s, err := Open(ctx, cfg, &wordEmbedder{dim: 8})
	require.NoError(t, err)

	w, err := NewWatcher(s, "", 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	done := make(chan IngestStats, 1)
	w.OnIngest = func(stats IngestStats, err error) {
		if err == nil && stats.Added > 0 {
			select {
			case done <- stats:
			default:
			}
		}
	}
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(cfg.KnowledgeDir, "fact.txt"), []byte("the sky is blue"), 0o644))

	select {
	case stats := <-done:
		assert.Equal(t, 1, stats.Added)
		assert.True(t, s.Contains("the sky is blue"))
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not re-ingest")
	}
}
