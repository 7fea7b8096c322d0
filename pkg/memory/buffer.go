package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/liliang-cn/mscp/pkg/core"
)

// EmptyHistory is what FormatForPrompt renders for an empty buffer.
const EmptyHistory = "No previous messages."

// ---------------------------------------------------------------------------
// Turn
// ---------------------------------------------------------------------------

// Role identifies the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Title returns the role with its first letter upper-cased ("User").
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	s := string(r)
	return strings.ToUpper(s[:1]) + s[1:]
}

// Turn is one message held in the short-term buffer.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ---------------------------------------------------------------------------
// ShortTermBuffer
// ---------------------------------------------------------------------------

// Archiver receives turns evicted from the buffer. *core.VectorStore satisfies it.
type Archiver interface {
	AddAndSave(ctx context.Context, text string) error
}

// BufferConfig sizes the buffer and its truncation limits. Truncation counts
// runes, not bytes.
type BufferConfig struct {
	// Capacity is the maximum number of buffered turns.
	Capacity int `json:"capacity" yaml:"capacity"`

	// ArchiveTruncate limits the content stored for an evicted turn.
	ArchiveTruncate int `json:"archiveTruncate" yaml:"archive_truncate"`

	// PromptTruncate limits each turn's content in FormatForPrompt.
	PromptTruncate int `json:"promptTruncate" yaml:"prompt_truncate"`

	Logger core.Logger `json:"-" yaml:"-"`
}

// DefaultBufferConfig returns capacity 5 with 300/200 rune truncation.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{Capacity: 5, ArchiveTruncate: 300, PromptTruncate: 200}
}

// ShortTermBuffer is a fixed-capacity FIFO of recent turns. When full, adding
// a turn first evicts the oldest one into the archive.
type ShortTermBuffer struct {
	mu        sync.Mutex
	cfg       BufferConfig
	archive   Archiver
	turns     []Turn
	overflows int
	logger    core.Logger
}

// NewShortTermBuffer creates an empty buffer that evicts into archive.
func NewShortTermBuffer(archive Archiver, cfg BufferConfig) (*ShortTermBuffer, error) {
	if archive == nil {
		return nil, fmt.Errorf("%w: buffer requires an archive", core.ErrInvalidConfig)
	}
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("%w: buffer capacity %d", core.ErrInvalidConfig, cfg.Capacity)
	}
	if cfg.ArchiveTruncate < 1 || cfg.PromptTruncate < 1 {
		return nil, fmt.Errorf("%w: truncation limits must be positive", core.ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NopLogger()
	}

	return &ShortTermBuffer{
		cfg:     cfg,
		archive: archive,
		turns:   make([]Turn, 0, cfg.Capacity),
		logger:  logger.With("component", "buffer"),
	}, nil
}

// Add appends a turn. At capacity the head turn is evicted and archived
// before the new turn is appended, so the buffer never exceeds its capacity.
// An archive failure is returned after the buffer has been updated; the
// evicted turn is not retried.
func (b *ShortTermBuffer) Add(ctx context.Context, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", core.ErrInvalidConfig, role)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var archiveErr error
	if len(b.turns) >= b.cfg.Capacity {
		oldest := b.turns[0]
		copy(b.turns, b.turns[1:])
		b.turns = b.turns[:len(b.turns)-1]
		b.overflows++

		archiveErr = b.compress(ctx, oldest)
	}

	b.turns = append(b.turns, Turn{Role: role, Content: content})
	return archiveErr
}

// compress stores an evicted turn as a tagged, truncated long-term chunk. The
// content is truncated, not summarized.
func (b *ShortTermBuffer) compress(ctx context.Context, t Turn) error {
	text := ArchiveText(t, b.cfg.ArchiveTruncate)
	if err := b.archive.AddAndSave(ctx, text); err != nil {
		b.logger.Error("failed to archive evicted turn", "role", t.Role, "error", err)
		return fmt.Errorf("archive evicted %s turn: %w", t.Role, err)
	}
	b.logger.Debug("archived evicted turn", "role", t.Role, "overflows", b.overflows)
	return nil
}

// ArchiveText renders a turn as "[PAST MEMORY - ROLE]: content".
func ArchiveText(t Turn, limit int) string {
	return fmt.Sprintf("[PAST MEMORY - %s]: %s", strings.ToUpper(string(t.Role)), truncate(t.Content, limit))
}

// FormatForPrompt renders the buffered turns oldest first, one
// "Role: content" line each, or EmptyHistory when the buffer is empty.
func (b *ShortTermBuffer) FormatForPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.turns) == 0 {
		return EmptyHistory
	}

	lines := make([]string, len(b.turns))
	for i, t := range b.turns {
		lines[i] = t.Role.Title() + ": " + truncate(t.Content, b.cfg.PromptTruncate)
	}
	return strings.Join(lines, "\n")
}

// Clear drops all buffered turns without archiving them.
func (b *ShortTermBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = b.turns[:0]
}

// History returns a copy of the buffered turns, oldest first.
func (b *ShortTermBuffer) History() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Len returns the number of buffered turns.
func (b *ShortTermBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

// Capacity returns the configured capacity.
func (b *ShortTermBuffer) Capacity() int {
	return b.cfg.Capacity
}

// Overflows returns the total number of evictions.
func (b *ShortTermBuffer) Overflows() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflows
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
