// Package chatlog keeps a durable SQLite transcript of every conversation
// turn, grouped into sessions. It is an audit trail only; the agent's memory
// never reads from it.
package chatlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/liliang-cn/mscp/pkg/core"
)

var (
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrClosed is returned when trying to use a closed log.
	ErrClosed = errors.New("chat log is closed")
)

// Session represents a chat session or conversation thread
type Session struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Messages  int            `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Message represents a single message in a chat session
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // 'user', 'assistant'
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Log is a SQLite-backed chat transcript.
type Log struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	logger core.Logger
}

// Open opens or creates the transcript database at path.
func Open(ctx context.Context, path string, logger core.Logger) (*Log, error) {
	if logger == nil {
		logger = core.NopLogger()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create chat log directory: %w", err)
		}
	}

	// journal_mode(WAL): readers do not block the writer
	// busy_timeout(5000): wait up to 5s for a lock instead of failing immediately
	// foreign_keys(1): applied to every pooled connection
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat log: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)

	l := &Log{db: db, path: path, logger: logger.With("component", "chatlog")}
	if err := l.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Init creates the tables and indexes if they do not exist. Open calls it.
func (l *Log) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL, -- 'user', 'assistant'
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create chat log tables: %w", err)
	}
	return nil
}

// NewSession creates a new chat session
func (l *Log) NewSession(ctx context.Context, userID string, metadata map[string]any) (*Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session metadata: %w", err)
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO sessions (id, user_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := l.db.ExecContext(ctx, query, sess.ID, sess.UserID, string(metadataJSON), now, now); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	l.logger.Debug("session created", "session", sess.ID)
	return sess, nil
}

// GetSession retrieves a session by ID
func (l *Log) GetSession(ctx context.Context, id string) (*Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	query := sessionSelect + ` WHERE s.id = ? GROUP BY s.id`
	sess, err := scanSession(l.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Append adds a message to a session and bumps the session's updated_at.
func (l *Log) Append(ctx context.Context, sessionID, role, content string) (*Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	msg := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, msg.CreatedAt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	query := `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

// History returns the most recent limit messages of a session, oldest first.
// limit <= 0 returns the whole session.
func (l *Log) History(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY rowid DESC
		LIMIT ?
	`
	rows, err := l.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to return chronological order (oldest first)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Sessions lists sessions, most recently active first.
func (l *Log) Sessions(ctx context.Context, limit int) ([]*Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	query := sessionSelect + ` GROUP BY s.id ORDER BY s.updated_at DESC, s.rowid DESC LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Path returns the database file path.
func (l *Log) Path() string {
	return l.path
}

// Close closes the database.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

const sessionSelect = `
	SELECT s.id, s.user_id, s.metadata, s.created_at, s.updated_at, COUNT(m.id)
	FROM sessions s LEFT JOIN messages m ON m.session_id = s.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess         Session
		userID       sql.NullString
		metadataJSON sql.NullString
	)
	if err := row.Scan(&sess.ID, &userID, &metadataJSON, &sess.CreatedAt, &sess.UpdatedAt, &sess.Messages); err != nil {
		return nil, err
	}
	sess.UserID = userID.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &sess.Metadata)
	}
	return &sess, nil
}
