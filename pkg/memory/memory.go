// Package memory implements the short-term side of the agent's memory and the
// orchestration of one conversational turn across all memory layers.
//
// A turn flows through the layers in a fixed order:
//   - Buffer:    the user text enters the ShortTermBuffer, possibly evicting the
//     oldest turn into the long-term vector store
//   - Concepts:  related keywords are read from the concept graph
//   - Chunks:    the nearest long-term chunks are read from the vector store
//   - History:   the buffer is rendered for the prompt
//   - Learn:     the concept graph is updated with the user text
//
// Retrieval always sees the graph as it was before the current turn.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/liliang-cn/mscp/pkg/core"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// LongTermStore is the long-term memory used by a MemoryManager.
// *core.VectorStore satisfies it.
type LongTermStore interface {
	Archiver
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// ConceptIndex is the topical memory used by a MemoryManager.
// *graph.ConceptGraph satisfies it.
type ConceptIndex interface {
	Retrieve(query string, k int) []string
	Update(text string) error
}

// ---------------------------------------------------------------------------
// Configuration and results
// ---------------------------------------------------------------------------

// ManagerConfig configures a MemoryManager.
type ManagerConfig struct {
	Buffer BufferConfig

	// ConceptTopK is the number of related concepts retrieved per turn.
	ConceptTopK int

	// ChunkTopK is the number of long-term chunks retrieved per turn.
	ChunkTopK int

	Logger core.Logger
}

// DefaultManagerConfig returns the default configuration (3 concepts, 5 chunks).
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Buffer:      DefaultBufferConfig(),
		ConceptTopK: 3,
		ChunkTopK:   5,
	}
}

// TurnContext is the retrieval context gathered for one user turn.
type TurnContext struct {
	Query    string   `json:"query"`
	Concepts []string `json:"concepts"`
	Chunks   []string `json:"chunks"`
	History  string   `json:"history"`
}

// ---------------------------------------------------------------------------
// MemoryManager
// ---------------------------------------------------------------------------

// MemoryManager wires a user turn through the buffer, the concept graph and
// the vector store. It owns the buffer; the store and graph are shared.
type MemoryManager struct {
	store    LongTermStore
	concepts ConceptIndex
	buffer   *ShortTermBuffer
	cfg      ManagerConfig
	logger   core.Logger

	// turnMu serializes turns so each sees a consistent buffer and graph.
	turnMu sync.Mutex

	mu         sync.RWMutex
	transcript TranscriptFn // optional; set via SetTranscript
}

// NewMemoryManager creates a manager with a fresh short-term buffer evicting
// into store.
func NewMemoryManager(store LongTermStore, concepts ConceptIndex, cfg ManagerConfig) (*MemoryManager, error) {
	if store == nil || concepts == nil {
		return nil, fmt.Errorf("%w: memory manager requires a store and a concept index", core.ErrInvalidConfig)
	}
	if cfg.ConceptTopK < 0 || cfg.ChunkTopK < 0 {
		return nil, fmt.Errorf("%w: negative top-k", core.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NopLogger()
	}
	if cfg.Buffer.Logger == nil {
		cfg.Buffer.Logger = cfg.Logger
	}

	buffer, err := NewShortTermBuffer(store, cfg.Buffer)
	if err != nil {
		return nil, err
	}

	return &MemoryManager{
		store:    store,
		concepts: concepts,
		buffer:   buffer,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "memory"),
	}, nil
}

// Buffer returns the manager's short-term buffer.
func (m *MemoryManager) Buffer() *ShortTermBuffer {
	return m.buffer
}

// ProcessUserTurn records a user turn and gathers its retrieval context.
//
// Failures of the buffer eviction or of chunk retrieval are returned; state
// mutated before the failure is kept. A failure to persist the concept graph
// is logged only.
func (m *MemoryManager) ProcessUserTurn(ctx context.Context, text string) (*TurnContext, error) {
	m.turnMu.Lock()
	defer m.turnMu.Unlock()

	err := m.buffer.Add(ctx, RoleUser, text)
	m.record(ctx, RoleUser, text)
	if err != nil {
		return nil, fmt.Errorf("buffer user turn: %w", err)
	}

	concepts := m.concepts.Retrieve(text, m.cfg.ConceptTopK)

	chunks, err := m.store.Retrieve(ctx, text, m.cfg.ChunkTopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve long-term memory: %w", err)
	}

	tc := &TurnContext{
		Query:    text,
		Concepts: concepts,
		Chunks:   chunks,
		History:  m.buffer.FormatForPrompt(),
	}

	if err := m.concepts.Update(text); err != nil {
		m.logger.Warn("concept graph update failed", "error", err)
	}

	m.logger.Debug("user turn processed",
		"concepts", len(tc.Concepts), "chunks", len(tc.Chunks), "buffered", m.buffer.Len())
	return tc, nil
}

// RecordAssistantTurn adds the trimmed response to the buffer. An empty
// response is ignored.
func (m *MemoryManager) RecordAssistantTurn(ctx context.Context, response string) error {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil
	}

	m.turnMu.Lock()
	defer m.turnMu.Unlock()

	err := m.buffer.Add(ctx, RoleAssistant, response)
	m.record(ctx, RoleAssistant, response)
	if err != nil {
		return fmt.Errorf("buffer assistant turn: %w", err)
	}
	return nil
}

// Clear wipes the short-term buffer without archiving.
func (m *MemoryManager) Clear() {
	m.buffer.Clear()
	m.logger.Info("short-term memory cleared")
}
