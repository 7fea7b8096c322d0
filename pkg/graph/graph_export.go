package graph

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/liliang-cn/mscp/internal/encoding"
)

// GraphML export structures

// GraphMLDocument represents a GraphML document
type GraphMLDocument struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []GraphMLKey `xml:"key"`
	Graph   GraphMLGraph `xml:"graph"`
}

// GraphMLKey represents a GraphML key definition
type GraphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

// GraphMLGraph represents a GraphML graph
type GraphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []GraphMLNode `xml:"node"`
	Edges       []GraphMLEdge `xml:"edge"`
}

// GraphMLNode represents a GraphML node
type GraphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []GraphMLData `xml:"data"`
}

// GraphMLEdge represents a GraphML edge
type GraphMLEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []GraphMLData `xml:"data"`
}

// GraphMLData represents GraphML data
type GraphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML exports the graph as undirected GraphML with mention and
// weight attributes.
func (g *ConceptGraph) WriteGraphML(w io.Writer) error {
	nodes := g.Nodes()
	edges := g.Edges()

	doc := GraphMLDocument{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys: []GraphMLKey{
			{ID: "d0", For: "node", AttrName: "mentions", AttrType: "int"},
			{ID: "d1", For: "edge", AttrName: "weight", AttrType: "int"},
		},
		Graph: GraphMLGraph{
			ID:          "concepts",
			EdgeDefault: "undirected",
			Nodes:       make([]GraphMLNode, 0, len(nodes)),
			Edges:       make([]GraphMLEdge, 0, len(edges)),
		},
	}

	for _, n := range nodes {
		doc.Graph.Nodes = append(doc.Graph.Nodes, GraphMLNode{
			ID:   n.Keyword,
			Data: []GraphMLData{{Key: "d0", Value: strconv.Itoa(n.Mentions)}},
		})
	}
	for i, e := range edges {
		doc.Graph.Edges = append(doc.Graph.Edges, GraphMLEdge{
			ID:     "e" + strconv.Itoa(i),
			Source: e.Source,
			Target: e.Target,
			Data:   []GraphMLData{{Key: "d1", Value: strconv.Itoa(e.Weight)}},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode GraphML: %w", err)
	}
	return encoder.Flush()
}

// WriteDOT renders the graph in Graphviz DOT. Node size follows mentions and
// pen width follows edge weight.
func (g *ConceptGraph) WriteDOT(w io.Writer) error {
	nodes := g.Nodes()
	edges := g.Edges()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "graph concepts {")
	fmt.Fprintln(bw, `  label="MSCP Concept Graph"; labelloc=t; fontsize=16;`)
	fmt.Fprintln(bw, `  layout=neato; overlap=false;`)
	fmt.Fprintln(bw, `  node [shape=circle, style=filled, fillcolor="#4A90D9", fontcolor=white, fontsize=9];`)
	fmt.Fprintln(bw, `  edge [color="#888888"];`)

	for _, n := range nodes {
		size := 0.3 + 0.1*float64(n.Mentions)
		fmt.Fprintf(bw, "  %s [width=%.2f];\n", dotID(n.Keyword), size)
	}
	for _, e := range edges {
		fmt.Fprintf(bw, "  %s -- %s [penwidth=%d, label=%d];\n", dotID(e.Source), dotID(e.Target), e.Weight, e.Weight)
	}
	fmt.Fprintln(bw, "}")

	return bw.Flush()
}

// Visualize writes a DOT rendering of the graph to path. An empty graph is
// logged and nothing is written.
func (g *ConceptGraph) Visualize(path string) error {
	if g.Len() == 0 {
		g.logger.Info("concept graph is empty, nothing to visualize")
		return nil
	}
	if err := encoding.WriteFileAtomic(path, g.WriteDOT); err != nil {
		return fmt.Errorf("visualize concept graph: %w", err)
	}
	g.logger.Info("concept graph rendered", "path", path)
	return nil
}

func dotID(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
