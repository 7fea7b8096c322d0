package graph

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stopwords dropped", "Write a Python script for the API", []string{"api", "python", "script"}},
		{"deduplicated", "Rust rust RUST", []string{"rust"}},
		{"short tokens dropped", "go is ok", nil},
		{"punctuation in tokens", "node.js and web_sockets", []string{"node.js", "web_sockets"}},
		{"must start with letter", "2fa 3d graphics", []string{"graphics"}},
		{"empty", "", nil},
		{"accented word is not split", "résumé writing", []string{"writing"}},
		{"trailing accent", "café", nil},
		{"inner accent", "naïveté über", nil},
		{"trailing punctuation trimmed", "i like rust.", []string{"rust"}},
		{"symbols need a boundary", "c++ code", []string{"code"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.text))
		})
	}
}

func TestUpdateAndRetrieve(t *testing.T) {
	g := New(Config{})

	require.NoError(t, g.Update("rust programs use ownership"))
	require.NoError(t, g.Update("ownership prevents bugs in rust"))

	assert.Equal(t, 2, g.EdgeWeight("rust", "ownership"))
	assert.Equal(t, 2, g.EdgeWeight("ownership", "rust"))
	assert.Equal(t, 1, g.EdgeWeight("programs", "rust"))
	assert.Equal(t, 0, g.EdgeWeight("programs", "bugs"))
	assert.Equal(t, 0, g.EdgeWeight("rust", "rust"))

	node, ok := g.Node("rust")
	require.True(t, ok)
	assert.Equal(t, 2, node.Mentions)

	_, ok = g.Node("use")
	assert.False(t, ok, "stopwords never become nodes")

	assert.Equal(t, []string{"ownership", "bugs", "prevents"}, g.Retrieve("rust", 3))

	assert.Equal(t, []ConceptEdge{
		{Source: "rust", Target: "ownership", Weight: 2},
		{Source: "rust", Target: "bugs", Weight: 1},
		{Source: "rust", Target: "prevents", Weight: 1},
		{Source: "rust", Target: "programs", Weight: 1},
	}, g.Neighbors("rust"))
	assert.Empty(t, g.Neighbors("missing"))
}

func TestRetrieveAccumulatesAcrossKeywords(t *testing.T) {
	g := New(Config{})
	require.NoError(t, g.Update("alpha gamma"))
	require.NoError(t, g.Update("beta gamma"))
	require.NoError(t, g.Update("alpha delta"))
	require.NoError(t, g.Update("alpha delta"))

	scored := g.RetrieveScored("alpha beta", 10)
	assert.Equal(t, []RelatedConcept{
		{Keyword: "delta", Score: 2},
		{Keyword: "gamma", Score: 2},
	}, scored)
}

func TestRetrieveNoMatch(t *testing.T) {
	g := New(Config{})
	require.NoError(t, g.Update("kubernetes cluster networking"))

	assert.Empty(t, g.Retrieve("haskell monads", 3))
	assert.Empty(t, g.Retrieve("kubernetes", 0))
	assert.Empty(t, New(Config{}).Retrieve("kubernetes", 3))
}

func TestUpdateMonotonic(t *testing.T) {
	g := New(Config{})
	prevMentions, prevWeight := 0, 0
	for i := 0; i < 5; i++ {
		require.NoError(t, g.Update("database indexing strategies"))
		n, _ := g.Node("database")
		w := g.EdgeWeight("database", "indexing")
		assert.Greater(t, n.Mentions, prevMentions)
		assert.Greater(t, w, prevWeight)
		prevMentions, prevWeight = n.Mentions, w
	}

	stats := g.Stats()
	assert.Equal(t, Stats{Nodes: 3, Edges: 3, TotalMentions: 15, TotalWeight: 15}, stats)
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concept_graph.json")

	g := New(Config{Path: path})
	require.NoError(t, g.Update("rust programs use ownership"))
	require.NoError(t, g.Update("ownership prevents bugs in rust"))
	require.FileExists(t, path, "update persists")

	loaded := Open(Config{Path: path})
	assert.Equal(t, g.Nodes(), loaded.Nodes())
	assert.Equal(t, g.Edges(), loaded.Edges())
	assert.Equal(t, g.Retrieve("rust", 3), loaded.Retrieve("rust", 3))
}

func TestLoadAcceptsLinksKey(t *testing.T) {
	doc := `{"directed": false, "multigraph": false, "graph": {},
		"nodes": [{"id": "python", "mentions": 3}, {"id": "pandas", "mentions": 1}],
		"links": [{"source": "python", "target": "pandas", "weight": 4}]}`

	g := New(Config{})
	require.NoError(t, g.ReadFrom(strings.NewReader(doc)))
	assert.Equal(t, 4, g.EdgeWeight("pandas", "python"))

	n, ok := g.Node("python")
	require.True(t, ok)
	assert.Equal(t, 3, n.Mentions)
}

func TestLoadMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{nodes: oops"},
		{"unknown endpoint", `{"nodes":[{"id":"a","mentions":1}],"edges":[{"source":"a","target":"b","weight":1}]}`},
		{"self edge", `{"nodes":[{"id":"a","mentions":1}],"edges":[{"source":"a","target":"a","weight":1}]}`},
		{"duplicate node", `{"nodes":[{"id":"a","mentions":1},{"id":"a","mentions":2}],"edges":[]}`},
		{"duplicate edge", `{"nodes":[{"id":"a","mentions":1},{"id":"b","mentions":1}],
			"edges":[{"source":"a","target":"b","weight":1},{"source":"b","target":"a","weight":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "graph.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o644))

			g := New(Config{Path: path})
			assert.ErrorIs(t, g.Load(), ErrMalformedGraph)
			assert.Equal(t, 0, g.Len(), "failed load leaves an empty graph")

			// Open degrades instead of failing.
			assert.Equal(t, 0, Open(Config{Path: path}).Len())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	g := New(Config{Path: filepath.Join(t.TempDir(), "absent.json")})
	assert.NoError(t, g.Load())
	assert.Equal(t, 0, g.Len())
}

func TestExports(t *testing.T) {
	g := New(Config{})
	require.NoError(t, g.Update(`say "quoted" golang channels`))

	var dot bytes.Buffer
	require.NoError(t, g.WriteDOT(&dot))
	out := dot.String()
	assert.True(t, strings.HasPrefix(out, "graph concepts {"))
	assert.Contains(t, out, `"channels" -- "golang" [penwidth=1, label=1];`)
	assert.Contains(t, out, `"quoted"`)

	var gml bytes.Buffer
	require.NoError(t, g.WriteGraphML(&gml))

	var doc GraphMLDocument
	require.NoError(t, xml.Unmarshal(gml.Bytes(), &doc))
	assert.Equal(t, "undirected", doc.Graph.EdgeDefault)
	assert.Len(t, doc.Graph.Nodes, 4)
	assert.Len(t, doc.Graph.Edges, 6)
}

func TestVisualize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concept_graph.dot")

	g := New(Config{})
	require.NoError(t, g.Visualize(path))
	assert.NoFileExists(t, path, "empty graph renders nothing")

	require.NoError(t, g.Update("vector search engines"))
	require.NoError(t, g.Visualize(path))
	assert.FileExists(t, path)
}
