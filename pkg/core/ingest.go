package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ChunkText splits text on whitespace into windows of size words. Each window
// starts size-overlap words after the previous one; the last window may be
// shorter. Text without words yields no chunks.
func ChunkText(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk size %d, overlap %d", ErrInvalidConfig, size, overlap)
	}

	words := strings.Fields(text)
	var chunks []string
	for start := 0; start < len(words); start += size - overlap {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks, nil
}

// Ingest chunks every *.txt file in dir (the configured KnowledgeDir when dir
// is empty) and adds each chunk whose exact text is not already stored. Files
// are read in name order. A missing directory is created and yields zero
// stats. The store is saved once, and only if something was added.
// Concurrent calls run one at a time so a chunk is never stored twice.
func (s *VectorStore) Ingest(ctx context.Context, dir string) (IngestStats, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	var stats IngestStats
	if dir == "" {
		dir = s.config.KnowledgeDir
	}

	files, err := knowledgeFiles(dir)
	if err != nil {
		return stats, wrapError("ingest", err)
	}
	if len(files) == 0 {
		s.logger.Info("no knowledge files found", "dir", dir)
		return stats, nil
	}

	var ingestErr error
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			ingestErr = fmt.Errorf("failed to read %s: %w", path, err)
			break
		}
		stats.Files++

		chunks, err := ChunkText(string(data), s.config.ChunkSize, s.config.ChunkOverlap)
		if err != nil {
			ingestErr = err
			break
		}

		for _, chunk := range chunks {
			stats.Chunks++
			if s.Contains(chunk) {
				stats.Skipped++
				continue
			}
			if err := s.Add(ctx, chunk); err != nil {
				ingestErr = err
				break
			}
			stats.Added++
		}
		if ingestErr != nil {
			break
		}

		s.logger.Debug("ingested file", "file", filepath.Base(path), "chunks", len(chunks))
	}

	if stats.Added > 0 {
		if err := s.Save(); err != nil {
			return stats, err
		}
	}
	if ingestErr != nil {
		return stats, wrapError("ingest", ingestErr)
	}

	s.logger.Info("knowledge ingest complete",
		"files", stats.Files, "chunks", stats.Chunks, "added", stats.Added, "skipped", stats.Skipped)
	return stats, nil
}

func knowledgeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create knowledge directory: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
