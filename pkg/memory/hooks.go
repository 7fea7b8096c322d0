package memory

// hooks.go defines the extensibility hook that lets callers observe every turn
// processed by the MemoryManager without coupling this package to a storage
// backend.
//
// TranscriptFn
//   Called once for each user turn accepted by ProcessUserTurn and each
//   non-empty assistant turn accepted by RecordAssistantTurn, after the turn
//   has entered the short-term buffer. Typical implementations: the SQLite
//   chat log in pkg/chatlog, a JSONL audit file, a test recorder.
//   Hook failures are logged and never fail the turn.

import (
	"context"
)

// ---------------------------------------------------------------------------
// TranscriptFn
// ---------------------------------------------------------------------------

// TranscriptFn is a caller-provided hook that records a turn.
//
// Example wiring (SQLite chat log):
//
//	mgr.SetTranscript(func(ctx context.Context, role memory.Role, content string) error {
//	    _, err := log.Append(ctx, sessionID, string(role), content)
//	    return err
//	})
type TranscriptFn func(ctx context.Context, role Role, content string) error

// SetTranscript registers the transcript hook.
// Passing nil clears a previously registered hook.
func (m *MemoryManager) SetTranscript(fn TranscriptFn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcript = fn
}

func (m *MemoryManager) record(ctx context.Context, role Role, content string) {
	m.mu.RLock()
	fn := m.transcript
	m.mu.RUnlock()

	if fn == nil {
		return
	}
	if err := fn(ctx, role, content); err != nil {
		m.logger.Warn("transcript hook failed", "role", role, "error", err)
	}
}
