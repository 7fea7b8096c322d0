package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/liliang-cn/mscp/pkg/core"
)

// ErrMalformedGraph is returned when a persisted graph cannot be decoded or
// violates the graph invariants.
var ErrMalformedGraph = errors.New("malformed concept graph")

// Config configures a ConceptGraph.
type Config struct {
	// Path is the node-link JSON file. Empty disables persistence.
	Path   string
	Logger core.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{Path: "concept_graph.json"}
}

// ConceptNode is a keyword and the number of processed texts it appeared in.
type ConceptNode struct {
	Keyword  string `json:"keyword"`
	Mentions int    `json:"mentions"`
}

// ConceptEdge is an undirected co-occurrence edge. Source sorts before Target.
type ConceptEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// RelatedConcept is a retrieval result with its accumulated edge weight.
type RelatedConcept struct {
	Keyword string `json:"keyword"`
	Score   int    `json:"score"`
}

// Stats summarizes the graph.
type Stats struct {
	Nodes         int `json:"nodes"`
	Edges         int `json:"edges"`
	TotalMentions int `json:"totalMentions"`
	TotalWeight   int `json:"totalWeight"`
}

// pairKey is an unordered keyword pair; a < b always.
type pairKey struct {
	a, b string
}

func makePair(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// ConceptGraph is a weighted undirected keyword co-occurrence graph.
type ConceptGraph struct {
	mu       sync.RWMutex
	path     string
	mentions map[string]int
	edges    map[pairKey]int
	adj      map[string]map[string]struct{}
	logger   core.Logger
}

// New creates an empty graph.
func New(config Config) *ConceptGraph {
	logger := config.Logger
	if logger == nil {
		logger = core.NopLogger()
	}
	g := &ConceptGraph{
		path:   config.Path,
		logger: logger.With("component", "graph"),
	}
	g.reset()
	return g
}

// Open creates a graph and loads config.Path. A missing or malformed file
// yields an empty graph; the failure is logged, not returned.
func Open(config Config) *ConceptGraph {
	g := New(config)
	if err := g.Load(); err != nil {
		g.logger.Warn("starting with empty concept graph", "path", g.path, "error", err)
	}
	return g
}

func (g *ConceptGraph) reset() {
	g.mentions = make(map[string]int)
	g.edges = make(map[pairKey]int)
	g.adj = make(map[string]map[string]struct{})
}

// ============================================================================
// Keyword extraction
// ============================================================================

// A keyword is an ASCII letter followed by two or more of [a-zA-Z0-9_+#.-],
// bounded on both sides by a word boundary. Word characters are Unicode
// letters, digits and '_', so "café" yields nothing rather than "caf".
const minKeywordLen = 3

var stopwords = toSet(
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "shall",
	"should", "may", "might", "can", "could", "to", "of", "in", "for",
	"on", "with", "at", "by", "from", "about", "as", "into", "through",
	"during", "before", "after", "above", "below", "between", "out",
	"and", "but", "or", "nor", "not", "so", "yet", "both", "either",
	"i", "you", "he", "she", "it", "we", "they", "me", "him", "her",
	"us", "them", "my", "your", "his", "its", "our", "their", "this",
	"that", "these", "those", "what", "which", "who", "how", "when",
	"where", "why", "all", "each", "every", "any", "some",
	"write", "create", "make", "show", "tell", "give", "get", "use",
	"help", "want", "need", "like", "also", "just", "more", "very",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// ExtractKeywords returns the distinct non-stopword keywords of text in
// lexical order.
func ExtractKeywords(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range scanKeywords(strings.ToLower(text)) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// scanKeywords finds keyword matches left to right without overlap. When the
// longest run does not end on a word boundary it is shortened until it does.
func scanKeywords(text string) []string {
	var out []string
	for i := 0; i < len(text); {
		if !isASCIILetter(text[i]) || !atWordBoundary(text, i) {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			continue
		}

		j := i + 1
		for j < len(text) && isKeywordByte(text[j]) {
			j++
		}
		end := -1
		for e := j; e >= i+minKeywordLen; e-- {
			if atWordBoundary(text, e) {
				end = e
				break
			}
		}
		if end < 0 {
			i++
			continue
		}
		out = append(out, text[i:end])
		i = end
	}
	return out
}

func atWordBoundary(s string, pos int) bool {
	var before, after bool
	if pos > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:pos])
		before = isWordRune(r)
	}
	if pos < len(s) {
		r, _ := utf8.DecodeRuneInString(s[pos:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isASCIILetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func isKeywordByte(b byte) bool {
	return isASCIILetter(b) || ('0' <= b && b <= '9') ||
		b == '_' || b == '+' || b == '#' || b == '.' || b == '-'
}

// ============================================================================
// Mutation and retrieval
// ============================================================================

// Update records the keywords of text: each keyword gains a mention and each
// distinct pair gains one unit of edge weight. The graph is saved afterwards
// when a path is configured.
func (g *ConceptGraph) Update(text string) error {
	keywords := ExtractKeywords(text)
	if len(keywords) == 0 {
		return nil
	}

	g.mu.Lock()
	for _, kw := range keywords {
		g.mentions[kw]++
	}
	for i := 0; i < len(keywords); i++ {
		for j := i + 1; j < len(keywords); j++ {
			g.addEdge(keywords[i], keywords[j], 1)
		}
	}
	g.mu.Unlock()

	g.logger.Debug("concept graph updated", "keywords", len(keywords))

	if g.path == "" {
		return nil
	}
	return g.Save()
}

// addEdge must be called with mu held.
func (g *ConceptGraph) addEdge(x, y string, weight int) {
	g.edges[makePair(x, y)] += weight
	g.link(x, y)
	g.link(y, x)
}

func (g *ConceptGraph) link(from, to string) {
	set, ok := g.adj[from]
	if !ok {
		set = make(map[string]struct{})
		g.adj[from] = set
	}
	set[to] = struct{}{}
}

// Retrieve returns up to k keywords related to query, ranked by the sum of
// edge weights connecting them to the query's keywords. Ties go to the
// lexically smaller keyword.
func (g *ConceptGraph) Retrieve(query string, k int) []string {
	related := g.RetrieveScored(query, k)
	out := make([]string, len(related))
	for i, r := range related {
		out[i] = r.Keyword
	}
	return out
}

// RetrieveScored is Retrieve with accumulated scores.
func (g *ConceptGraph) RetrieveScored(query string, k int) []RelatedConcept {
	if k <= 0 {
		return []RelatedConcept{}
	}

	g.mu.RLock()
	scores := make(map[string]int)
	for _, kw := range ExtractKeywords(query) {
		for neighbor := range g.adj[kw] {
			scores[neighbor] += g.edges[makePair(kw, neighbor)]
		}
	}
	g.mu.RUnlock()

	related := make([]RelatedConcept, 0, len(scores))
	for kw, score := range scores {
		related = append(related, RelatedConcept{Keyword: kw, Score: score})
	}
	sort.Slice(related, func(i, j int) bool {
		if related[i].Score != related[j].Score {
			return related[i].Score > related[j].Score
		}
		return related[i].Keyword < related[j].Keyword
	})

	if len(related) > k {
		related = related[:k]
	}
	return related
}

// ============================================================================
// Inspection
// ============================================================================

// Node returns the node for keyword.
func (g *ConceptGraph) Node(keyword string) (ConceptNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.mentions[keyword]
	if !ok {
		return ConceptNode{}, false
	}
	return ConceptNode{Keyword: keyword, Mentions: m}, true
}

// EdgeWeight returns the weight between two keywords, or 0 when unconnected.
func (g *ConceptGraph) EdgeWeight(x, y string) int {
	if x == y {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[makePair(x, y)]
}

// Neighbors returns the edges incident to keyword, heaviest first.
func (g *ConceptGraph) Neighbors(keyword string) []ConceptEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ConceptEdge, 0, len(g.adj[keyword]))
	for n := range g.adj[keyword] {
		out = append(out, ConceptEdge{Source: keyword, Target: n, Weight: g.edges[makePair(keyword, n)]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// Nodes returns all nodes in lexical order.
func (g *ConceptGraph) Nodes() []ConceptNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedNodes()
}

// Edges returns all edges ordered by source then target.
func (g *ConceptGraph) Edges() []ConceptEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedEdges()
}

// TopConcepts returns the n most mentioned keywords.
func (g *ConceptGraph) TopConcepts(n int) []ConceptNode {
	nodes := g.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Mentions > nodes[j].Mentions
	})
	if n >= 0 && len(nodes) > n {
		nodes = nodes[:n]
	}
	return nodes
}

// Stats returns node and edge totals.
func (g *ConceptGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Nodes: len(g.mentions), Edges: len(g.edges)}
	for _, m := range g.mentions {
		s.TotalMentions += m
	}
	for _, w := range g.edges {
		s.TotalWeight += w
	}
	return s
}

// Len returns the number of nodes.
func (g *ConceptGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.mentions)
}

func (g *ConceptGraph) sortedNodes() []ConceptNode {
	nodes := make([]ConceptNode, 0, len(g.mentions))
	for kw, m := range g.mentions {
		nodes = append(nodes, ConceptNode{Keyword: kw, Mentions: m})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Keyword < nodes[j].Keyword })
	return nodes
}

func (g *ConceptGraph) sortedEdges() []ConceptEdge {
	edges := make([]ConceptEdge, 0, len(g.edges))
	for p, w := range g.edges {
		edges = append(edges, ConceptEdge{Source: p.a, Target: p.b, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedGraph, fmt.Sprintf(format, args...))
}
