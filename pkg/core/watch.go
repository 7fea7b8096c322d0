package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period a Watcher waits after the last file
// event before re-ingesting.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-ingests a knowledge directory when its text files change.
type Watcher struct {
	store    *VectorStore
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   Logger

	// OnIngest, if set, is called after every re-ingest.
	OnIngest func(IngestStats, error)
}

// NewWatcher starts watching dir. An empty dir selects the store's KnowledgeDir.
func NewWatcher(store *VectorStore, dir string, debounce time.Duration) (*Watcher, error) {
	if dir == "" {
		dir = store.config.KnowledgeDir
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		store:    store,
		dir:      dir,
		debounce: debounce,
		watcher:  fw,
		logger:   store.logger.With("watch", dir),
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("knowledge file changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-fire:
			fire = nil
			stats, err := w.store.Ingest(ctx, w.dir)
			if err != nil {
				w.logger.Error("re-ingest failed", "error", err)
			}
			if w.OnIngest != nil {
				w.OnIngest(stats, err)
			}
		}
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func relevant(event fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(event.Name), ".txt") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}
