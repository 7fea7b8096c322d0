// Package config loads the agent's configuration from a YAML file, a .env
// file and MSCP_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/liliang-cn/mscp/pkg/core"
	"github.com/liliang-cn/mscp/pkg/graph"
	"github.com/liliang-cn/mscp/pkg/llm"
	"github.com/liliang-cn/mscp/pkg/memory"
)

// Embedding backends.
const (
	BackendHash   = "hash"
	BackendOpenAI = "openai"
)

// Config represents the complete agent configuration.
type Config struct {
	// DataDir is the base directory for relative paths below.
	DataDir string `yaml:"data_dir"`

	Store     StoreConfig     `yaml:"store"`
	Graph     GraphConfig     `yaml:"graph"`
	Memory    MemoryConfig    `yaml:"memory"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Inference InferenceConfig `yaml:"inference"`
	ChatLog   ChatLogConfig   `yaml:"chat_log"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig contains vector store files and ingest settings.
type StoreConfig struct {
	IndexFile    string `yaml:"index_file"`
	MetaFile     string `yaml:"meta_file"`
	KnowledgeDir string `yaml:"knowledge_dir"`
	ChunkSize    int    `yaml:"chunk_size"`    // words
	ChunkOverlap int    `yaml:"chunk_overlap"` // words
}

// GraphConfig contains concept graph settings.
type GraphConfig struct {
	File string `yaml:"file"`
}

// MemoryConfig sizes the short-term buffer and per-turn retrieval.
type MemoryConfig struct {
	Buffer      memory.BufferConfig `yaml:"buffer"`
	ConceptTopK int                 `yaml:"concept_top_k"`
	ChunkTopK   int                 `yaml:"chunk_top_k"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Backend    string `yaml:"backend"` // hash, openai
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheBytes int64  `yaml:"cache_bytes"` // 0 disables the cache
}

// InferenceConfig configures the completion endpoint and generation.
type InferenceConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float64  `yaml:"temperature"`
	Stop        []string `yaml:"stop"`
	Persona     string   `yaml:"persona"`
}

// ChatLogConfig contains transcript database settings.
type ChatLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns a configuration with the stock memory and generation settings.
func Default() *Config {
	store := core.DefaultConfig()
	manager := memory.DefaultManagerConfig()
	opts := llm.DefaultOptions()

	return &Config{
		DataDir: ".",
		Store: StoreConfig{
			IndexFile:    store.IndexPath,
			MetaFile:     store.MetaPath,
			KnowledgeDir: store.KnowledgeDir,
			ChunkSize:    store.ChunkSize,
			ChunkOverlap: store.ChunkOverlap,
		},
		Graph: GraphConfig{File: graph.DefaultConfig().Path},
		Memory: MemoryConfig{
			Buffer:      manager.Buffer,
			ConceptTopK: manager.ConceptTopK,
			ChunkTopK:   manager.ChunkTopK,
		},
		Embedding: EmbeddingConfig{
			Backend:    BackendHash,
			Dimensions: 384,
			CacheBytes: 16 << 20,
		},
		Inference: InferenceConfig{
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			Stop:        opts.Stop,
		},
		ChatLog: ChatLogConfig{
			Enabled: true,
			File:    "chat_history.db",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads ./.env (if present), then the YAML file at path (skipped when
// path is empty), then MSCP_* environment overrides, and validates the result.
// ${VAR} references in the YAML are expanded.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %v", core.ErrInvalidConfig, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"MSCP_DATA_DIR":           &c.DataDir,
		"MSCP_LOG_LEVEL":          &c.Logging.Level,
		"MSCP_EMBEDDING_BACKEND":  &c.Embedding.Backend,
		"MSCP_EMBEDDING_BASE_URL": &c.Embedding.BaseURL,
		"MSCP_EMBEDDING_MODEL":    &c.Embedding.Model,
		"MSCP_INFERENCE_BASE_URL": &c.Inference.BaseURL,
		"MSCP_INFERENCE_MODEL":    &c.Inference.Model,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	// One key for both endpoints, they are usually the same server.
	if v, ok := os.LookupEnv("MSCP_API_KEY"); ok {
		c.Embedding.APIKey = v
		c.Inference.APIKey = v
	}

	if v, ok := os.LookupEnv("MSCP_EMBEDDING_DIMENSIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: MSCP_EMBEDDING_DIMENSIONS=%q", core.ErrInvalidConfig, v)
		}
		c.Embedding.Dimensions = n
	}
	return nil
}

// Validate checks the configuration for errors. Every failure wraps
// core.ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.DataDir == "" {
		return invalid("data_dir is required")
	}
	if c.Store.IndexFile == "" || c.Store.MetaFile == "" {
		return invalid("store.index_file and store.meta_file are required")
	}
	if c.Store.ChunkSize <= 0 {
		return invalid("store.chunk_size must be positive, got %d", c.Store.ChunkSize)
	}
	if c.Store.ChunkOverlap < 0 || c.Store.ChunkOverlap >= c.Store.ChunkSize {
		return invalid("store.chunk_overlap must be in [0, chunk_size), got %d", c.Store.ChunkOverlap)
	}

	b := c.Memory.Buffer
	if b.Capacity <= 0 {
		return invalid("memory.buffer.capacity must be positive, got %d", b.Capacity)
	}
	if b.ArchiveTruncate <= 0 || b.PromptTruncate <= 0 {
		return invalid("memory.buffer truncation limits must be positive")
	}
	if c.Memory.ConceptTopK < 0 || c.Memory.ChunkTopK < 0 {
		return invalid("memory top-k values cannot be negative")
	}

	switch c.Embedding.Backend {
	case BackendHash, BackendOpenAI:
	default:
		return invalid("embedding.backend must be %q or %q, got %q", BackendHash, BackendOpenAI, c.Embedding.Backend)
	}
	if c.Embedding.Dimensions <= 0 {
		return invalid("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.CacheBytes < 0 {
		return invalid("embedding.cache_bytes cannot be negative")
	}

	if c.Inference.MaxTokens <= 0 {
		return invalid("inference.max_tokens must be positive, got %d", c.Inference.MaxTokens)
	}
	if c.Inference.Temperature < 0 {
		return invalid("inference.temperature cannot be negative")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return invalid("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// Path resolves p against DataDir unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// CoreConfig returns the vector store configuration with resolved paths.
func (c *Config) CoreConfig(logger core.Logger) core.Config {
	return core.Config{
		IndexPath:    c.Path(c.Store.IndexFile),
		MetaPath:     c.Path(c.Store.MetaFile),
		Dimensions:   c.Embedding.Dimensions,
		ChunkSize:    c.Store.ChunkSize,
		ChunkOverlap: c.Store.ChunkOverlap,
		KnowledgeDir: c.Path(c.Store.KnowledgeDir),
		Logger:       logger,
	}
}

// GraphConfig returns the concept graph configuration with a resolved path.
func (c *Config) GraphConfig(logger core.Logger) graph.Config {
	return graph.Config{Path: c.Path(c.Graph.File), Logger: logger}
}

// ManagerConfig returns the memory manager configuration.
func (c *Config) ManagerConfig(logger core.Logger) memory.ManagerConfig {
	buf := c.Memory.Buffer
	buf.Logger = logger
	return memory.ManagerConfig{
		Buffer:      buf,
		ConceptTopK: c.Memory.ConceptTopK,
		ChunkTopK:   c.Memory.ChunkTopK,
		Logger:      logger,
	}
}

// GenerateOptions returns the per-turn generation options.
func (c *Config) GenerateOptions() llm.Options {
	return llm.Options{
		MaxTokens:   c.Inference.MaxTokens,
		Temperature: c.Inference.Temperature,
		Stop:        slices.Clone(c.Inference.Stop),
	}
}

// ChatLogPath returns the resolved transcript database path.
func (c *Config) ChatLogPath() string {
	return c.Path(c.ChatLog.File)
}
