package chatlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	sess, err := l.NewSession(ctx, "alice", map[string]any{"model": "llama-3.2"})
	require.NoError(t, err)
	assert.Len(t, sess.ID, 36)

	for _, m := range []struct{ role, content string }{
		{"user", "hello"},
		{"assistant", "hi there"},
		{"user", "bye"},
	} {
		_, err := l.Append(ctx, sess.ID, m.role, m.content)
		require.NoError(t, err)
	}

	history, err := l.History(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "bye", history[2].Content)

	recent, err := l.History(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "hi there", recent[0].Content)
	assert.Equal(t, "assistant", recent[0].Role)

	got, err := l.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, 3, got.Messages)
	assert.Equal(t, "llama-3.2", got.Metadata["model"])
}

func TestSessionsOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	first, err := l.NewSession(ctx, "", nil)
	require.NoError(t, err)
	second, err := l.NewSession(ctx, "", nil)
	require.NoError(t, err)

	_, err = l.Append(ctx, first.ID, "user", "bump")
	require.NoError(t, err)

	sessions, err := l.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, 1, sessions[0].Messages)
	assert.Equal(t, second.ID, sessions[1].ID)
	assert.Equal(t, 0, sessions[1].Messages)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	_, err := l.Append(ctx, "nope", "user", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = l.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReopenKeepsTranscript(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	l, err := Open(ctx, path, nil)
	require.NoError(t, err)
	sess, err := l.NewSession(ctx, "", nil)
	require.NoError(t, err)
	_, err = l.Append(ctx, sess.ID, "user", "persist me")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Append(ctx, sess.ID, "user", "closed")
	assert.ErrorIs(t, err, ErrClosed)

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Init(ctx), "schema creation is idempotent")

	history, err := reopened.History(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "persist me", history[0].Content)
}
