package core

import "context"

// Embedder is the embedding port: it maps text to a fixed-dimension vector.
// Implementations must be deterministic for a given model.
type Embedder interface {
	// Embed converts a single text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dim returns the dimension of vectors produced by this embedder.
	Dim() int
}

// SearchResult is a retrieved chunk with its squared Euclidean distance to the query.
type SearchResult struct {
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}

// StoreStats provides statistics about the vector store
type StoreStats struct {
	Count      int    `json:"count"`
	Dimensions int    `json:"dimensions"`
	IndexPath  string `json:"indexPath"`
	MetaPath   string `json:"metaPath"`

	Index map[string]interface{} `json:"index"`
}

// IngestStats reports the outcome of a knowledge-directory ingest.
type IngestStats struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Config represents configuration options for the vector store
type Config struct {
	// IndexPath is the binary vector index file.
	IndexPath string `json:"indexPath"`

	// MetaPath is the JSON metadata file holding one text per vector.
	MetaPath string `json:"metaPath"`

	// Dimensions is the vector length. Zero takes the embedder's Dim().
	Dimensions int `json:"dimensions"`

	// ChunkSize is the word window used by Ingest. Zero size and overlap
	// select 200 and 30.
	ChunkSize int `json:"chunkSize"`

	// ChunkOverlap is the number of words shared by adjacent windows.
	ChunkOverlap int `json:"chunkOverlap"`

	// KnowledgeDir holds the plain-text documents read by Ingest.
	KnowledgeDir string `json:"knowledgeDir"`

	Logger Logger `json:"-"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		IndexPath:    "brain.index",
		MetaPath:     "brain_meta.json",
		ChunkSize:    200,
		ChunkOverlap: 30,
		KnowledgeDir: "knowledge_base",
	}
}
