package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/mscp/pkg/core"
	"github.com/liliang-cn/mscp/pkg/embed"
	"github.com/liliang-cn/mscp/pkg/graph"
)

func newTestManager(t *testing.T, capacity int) (*MemoryManager, *core.VectorStore, *graph.ConceptGraph) {
	t.Helper()
	dir := t.TempDir()

	storeCfg := core.DefaultConfig()
	storeCfg.IndexPath = filepath.Join(dir, "brain.index")
	storeCfg.MetaPath = filepath.Join(dir, "brain_meta.json")
	store, err := core.Open(context.Background(), storeCfg, embed.NewHash(1024))
	require.NoError(t, err)

	g := graph.Open(graph.Config{Path: filepath.Join(dir, "concept_graph.json")})

	cfg := DefaultManagerConfig()
	cfg.Buffer.Capacity = capacity
	m, err := NewMemoryManager(store, g, cfg)
	require.NoError(t, err)
	return m, store, g
}

func TestEvictionReachesVectorStore(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, 2)

	_, err := m.ProcessUserTurn(ctx, "hello")
	require.NoError(t, err)
	require.NoError(t, m.RecordAssistantTurn(ctx, "hi"))
	_, err = m.ProcessUserTurn(ctx, "bye")
	require.NoError(t, err)

	assert.Equal(t, []Turn{
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: "bye"},
	}, m.Buffer().History())
	assert.Equal(t, []string{"[PAST MEMORY - USER]: hello"}, store.Texts())
	assert.Equal(t, 1, m.Buffer().Overflows())
}

func TestProcessUserTurnContext(t *testing.T) {
	ctx := context.Background()
	m, store, g := newTestManager(t, 5)

	require.NoError(t, store.Add(ctx, "Rust guarantees memory safety through ownership."))
	require.NoError(t, store.Add(ctx, "Sourdough needs a mature starter."))

	first, err := m.ProcessUserTurn(ctx, "rust programs use ownership")
	require.NoError(t, err)
	assert.Empty(t, first.Concepts, "retrieval sees the graph before this turn's update")
	assert.Equal(t, "User: rust programs use ownership", first.History)
	require.Len(t, first.Chunks, 2)
	assert.Equal(t, "Rust guarantees memory safety through ownership.", first.Chunks[0])

	require.NoError(t, m.RecordAssistantTurn(ctx, "  Ownership is Rust's memory model.  "))

	second, err := m.ProcessUserTurn(ctx, "ownership prevents bugs in rust")
	require.NoError(t, err)
	assert.Equal(t, []string{"programs", "ownership", "rust"}, second.Concepts)
	assert.Equal(t,
		"User: rust programs use ownership\nAssistant: Ownership is Rust's memory model.\nUser: ownership prevents bugs in rust",
		second.History)

	assert.Equal(t, 2, g.EdgeWeight("rust", "ownership"))
	assert.Equal(t, []string{"ownership", "bugs", "prevents"}, g.Retrieve("rust", 3))
}

func TestEmptyAssistantTurnIgnored(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, 5)

	require.NoError(t, m.RecordAssistantTurn(ctx, " \n\t "))
	assert.Equal(t, 0, m.Buffer().Len())
}

func TestTranscriptHook(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, 5)

	var recorded []Turn
	m.SetTranscript(func(_ context.Context, role Role, content string) error {
		recorded = append(recorded, Turn{Role: role, Content: content})
		return errors.New("disk full")
	})

	_, err := m.ProcessUserTurn(ctx, "question")
	require.NoError(t, err, "transcript failures are not fatal")
	require.NoError(t, m.RecordAssistantTurn(ctx, "answer"))

	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
	}, recorded)

	m.SetTranscript(nil)
	_, err = m.ProcessUserTurn(ctx, "again")
	require.NoError(t, err)
	assert.Len(t, recorded, 2)
}

type failingStore struct{ recordingArchive }

func (f *failingStore) Retrieve(context.Context, string, int) ([]string, error) {
	return nil, core.ErrEmbeddingFailed
}

func TestRetrievalFailurePropagates(t *testing.T) {
	ctx := context.Background()
	g := graph.New(graph.Config{})
	m, err := NewMemoryManager(&failingStore{}, g, DefaultManagerConfig())
	require.NoError(t, err)

	_, err = m.ProcessUserTurn(ctx, "database sharding")
	assert.ErrorIs(t, err, core.ErrEmbeddingFailed)

	assert.Equal(t, 1, m.Buffer().Len(), "buffer mutation is not rolled back")
	assert.Equal(t, 0, g.Len(), "graph update happens after retrieval")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, 2)

	_, err := m.ProcessUserTurn(ctx, "one")
	require.NoError(t, err)
	m.Clear()
	assert.Equal(t, EmptyHistory, m.Buffer().FormatForPrompt())
	assert.Equal(t, 0, store.Len())
}
