package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/liliang-cn/mscp/internal/encoding"
)

// nodeLinkDocument is the node-link JSON layout. Older files name the edge
// list "links"; both keys are accepted on read and "edges" is written.
type nodeLinkDocument struct {
	Directed   bool           `json:"directed"`
	Multigraph bool           `json:"multigraph"`
	Graph      map[string]any `json:"graph"`
	Nodes      []nodeLinkNode `json:"nodes"`
	Edges      []nodeLinkEdge `json:"edges"`
	Links      []nodeLinkEdge `json:"links,omitempty"`
}

type nodeLinkNode struct {
	ID       string `json:"id"`
	Mentions int    `json:"mentions"`
}

type nodeLinkEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// Load replaces the graph with the contents of the configured file. A missing
// file leaves the graph empty and is not an error. On a decode or invariant
// failure the graph is left empty and the error wraps ErrMalformedGraph.
func (g *ConceptGraph) Load() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
	if g.path == "" {
		return nil
	}

	f, err := os.Open(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		g.logger.Info("no concept graph on disk, starting fresh", "path", g.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load concept graph: %w: %v", ErrMalformedGraph, err)
	}
	defer f.Close()

	if err := g.decode(f); err != nil {
		g.reset()
		return fmt.Errorf("load concept graph %s: %w", g.path, err)
	}

	g.logger.Info("loaded concept graph", "nodes", len(g.mentions), "edges", len(g.edges))
	return nil
}

// ReadFrom replaces the graph with a node-link document read from r.
func (g *ConceptGraph) ReadFrom(r io.Reader) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
	if err := g.decode(r); err != nil {
		g.reset()
		return err
	}
	return nil
}

// decode must be called with mu held on an empty graph.
func (g *ConceptGraph) decode(r io.Reader) error {
	var doc nodeLinkDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return malformed("%v", err)
	}

	for _, n := range doc.Nodes {
		if n.ID == "" {
			return malformed("node without id")
		}
		if n.Mentions < 0 {
			return malformed("node %q has negative mentions", n.ID)
		}
		if _, dup := g.mentions[n.ID]; dup {
			return malformed("duplicate node %q", n.ID)
		}
		g.mentions[n.ID] = max(n.Mentions, 1)
	}

	edges := doc.Edges
	if len(edges) == 0 {
		edges = doc.Links
	}
	for _, e := range edges {
		if e.Source == e.Target {
			return malformed("self edge on %q", e.Source)
		}
		if _, ok := g.mentions[e.Source]; !ok {
			return malformed("edge source %q is not a node", e.Source)
		}
		if _, ok := g.mentions[e.Target]; !ok {
			return malformed("edge target %q is not a node", e.Target)
		}
		if e.Weight < 0 {
			return malformed("edge %q-%q has negative weight", e.Source, e.Target)
		}
		if _, dup := g.edges[makePair(e.Source, e.Target)]; dup {
			return malformed("duplicate edge %q-%q", e.Source, e.Target)
		}
		g.addEdge(e.Source, e.Target, max(e.Weight, 1))
	}

	return nil
}

// Save writes the graph to the configured path atomically.
func (g *ConceptGraph) Save() error {
	if g.path == "" {
		return nil
	}
	err := encoding.WriteFileAtomic(g.path, g.WriteJSON)
	if err != nil {
		return fmt.Errorf("save concept graph: %w", err)
	}
	return nil
}

// WriteJSON writes the graph as a node-link JSON document.
func (g *ConceptGraph) WriteJSON(w io.Writer) error {
	g.mu.RLock()
	nodes := g.sortedNodes()
	edges := g.sortedEdges()
	g.mu.RUnlock()

	doc := nodeLinkDocument{
		Graph: map[string]any{},
		Nodes: make([]nodeLinkNode, len(nodes)),
		Edges: make([]nodeLinkEdge, len(edges)),
	}
	for i, n := range nodes {
		doc.Nodes[i] = nodeLinkNode{ID: n.Keyword, Mentions: n.Mentions}
	}
	for i, e := range edges {
		doc.Edges[i] = nodeLinkEdge(e)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
