package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/mscp/internal/config"
	"github.com/liliang-cn/mscp/pkg/core"
	"github.com/liliang-cn/mscp/pkg/embed"
	"github.com/liliang-cn/mscp/pkg/graph"
)

var (
	configPath string
	dataDir    string
	logLevel   string

	cfg    *config.Config
	logger core.Logger = core.NopLogger()
)

var rootCmd = &cobra.Command{
	Use:   "mscp",
	Short: "Conversational agent with layered memory",
	Long: `mscp chats with a local language model and remembers: a short-term buffer of
recent turns, a vector store of knowledge and evicted turns, and a concept
graph of co-occurring keywords.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("data-dir") {
			loaded.DataDir = dataDir
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		l, err := core.NewLogger(loaded.Logging.Level, loaded.Logging.Development)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		core.Sync(logger)
	},
}

// newEmbedder builds the configured embedding backend, wrapped in a cache
// when cache_bytes is positive. The returned func releases the cache.
func newEmbedder() (core.Embedder, func(), error) {
	var (
		e   core.Embedder
		err error
	)
	switch cfg.Embedding.Backend {
	case config.BackendOpenAI:
		e, err = embed.NewOpenAI(embed.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, nil, err
		}
	default:
		e = embed.NewHash(cfg.Embedding.Dimensions)
	}

	if cfg.Embedding.CacheBytes <= 0 {
		return e, func() {}, nil
	}
	cached, err := embed.NewCached(e, cfg.Embedding.CacheBytes)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// openStore loads the vector store. Callers must invoke the returned func.
func openStore(ctx context.Context) (*core.VectorStore, func(), error) {
	e, release, err := newEmbedder()
	if err != nil {
		return nil, nil, err
	}
	store, err := core.Open(ctx, cfg.CoreConfig(logger), e)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, func() {
		_ = store.Close()
		release()
	}, nil
}

func openGraph() *graph.ConceptGraph {
	return graph.Open(cfg.GraphConfig(logger))
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", ".", "Directory for memory files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug/info/warn/error)")

	// Chat command
	chatCmd.Flags().Bool("watch", false, "Re-ingest the knowledge directory when its files change")
	chatCmd.Flags().Bool("no-ingest", false, "Skip the knowledge directory scan at startup")

	// Ingest command
	ingestCmd.Flags().Bool("json", false, "Output as JSON")

	// Search command
	searchCmd.Flags().IntP("top-k", "k", 5, "Number of results")
	searchCmd.Flags().Bool("json", false, "Output as JSON")

	// Graph commands
	graphCmd.AddCommand(graphExportCmd, graphRelatedCmd, graphNeighborsCmd, graphStatsCmd)
	graphExportCmd.Flags().String("format", "dot", "Export format (dot/graphml/json)")
	graphExportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	graphRelatedCmd.Flags().IntP("top-k", "k", 3, "Number of related concepts")
	graphNeighborsCmd.Flags().Bool("json", false, "Output as JSON")
	graphStatsCmd.Flags().Int("top", 10, "Number of most mentioned concepts to list")
	graphStatsCmd.Flags().Bool("json", false, "Output as JSON")

	// Memory commands
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryStatsCmd.Flags().Bool("json", false, "Output as JSON")

	// History command
	historyCmd.Flags().String("session", "", "Session ID (default lists sessions)")
	historyCmd.Flags().Int("limit", 20, "Number of sessions or messages")
	historyCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		chatCmd,
		ingestCmd,
		searchCmd,
		graphCmd,
		memoryCmd,
		historyCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
