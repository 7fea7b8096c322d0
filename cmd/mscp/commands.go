package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/mscp/pkg/chatlog"
	"github.com/liliang-cn/mscp/pkg/graph"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Chunk and store the .txt files of a knowledge directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}

		store, closeStore, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		stats, err := store.Ingest(cmd.Context(), dir)
		if err != nil {
			return fmt.Errorf("failed to ingest: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Files:   %d\n", stats.Files)
		fmt.Fprintf(out, "Chunks:  %d\n", stats.Chunks)
		fmt.Fprintf(out, "Added:   %d\n", stats.Added)
		fmt.Fprintf(out, "Skipped: %d\n", stats.Skipped)
		fmt.Fprintf(out, "Total:   %d\n", store.Len())
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search long-term memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		k, _ := cmd.Flags().GetInt("top-k")

		store, closeStore, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		results, err := store.Search(cmd.Context(), query, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), results)
		}
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No results found")
			return nil
		}
		fmt.Fprintf(out, "Found %d results:\n\n", len(results))
		for i, r := range results {
			fmt.Fprintf(out, "%d. #%d (distance: %.4f)\n", i+1, r.Position, r.Distance)
			fmt.Fprintf(out, "   %s\n\n", r.Text)
		}
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the concept graph",
}

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the concept graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		g := openGraph()

		var write func(io.Writer) error
		switch format {
		case "dot":
			write = g.WriteDOT
		case "graphml":
			write = g.WriteGraphML
		case "json":
			write = g.WriteJSON
		default:
			return fmt.Errorf("unsupported format %q (dot/graphml/json)", format)
		}

		if output == "" {
			return write(cmd.OutOrStdout())
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		if err := write(f); err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Graph exported to %s (%d nodes)\n", output, g.Len())
		return nil
	},
}

var graphRelatedCmd = &cobra.Command{
	Use:   "related <query>",
	Short: "List concepts related to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("top-k")
		related := openGraph().RetrieveScored(strings.Join(args, " "), k)

		out := cmd.OutOrStdout()
		if len(related) == 0 {
			fmt.Fprintln(out, "No related concepts")
			return nil
		}
		for _, r := range related {
			fmt.Fprintf(out, "%-24s %d\n", r.Keyword, r.Score)
		}
		return nil
	},
}

var graphNeighborsCmd = &cobra.Command{
	Use:   "neighbors <keyword>",
	Short: "List the edges of one concept, heaviest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := strings.ToLower(args[0])
		edges := openGraph().Neighbors(keyword)

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), edges)
		}
		out := cmd.OutOrStdout()
		if len(edges) == 0 {
			fmt.Fprintf(out, "No neighbors for %q\n", keyword)
			return nil
		}
		for _, e := range edges {
			fmt.Fprintf(out, "%-24s %d\n", e.Target, e.Weight)
		}
		return nil
	},
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display concept graph statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		top, _ := cmd.Flags().GetInt("top")
		g := openGraph()
		stats := g.Stats()
		concepts := g.TopConcepts(top)

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), struct {
				graph.Stats
				Top []graph.ConceptNode `json:"top"`
			}{stats, concepts})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Concept Graph: %s\n", cfg.Path(cfg.Graph.File))
		fmt.Fprintf(out, "  Nodes:          %d\n", stats.Nodes)
		fmt.Fprintf(out, "  Edges:          %d\n", stats.Edges)
		fmt.Fprintf(out, "  Total mentions: %d\n", stats.TotalMentions)
		fmt.Fprintf(out, "  Total weight:   %d\n", stats.TotalWeight)
		if len(concepts) > 0 {
			fmt.Fprintln(out, "  Top concepts:")
			for _, n := range concepts {
				fmt.Fprintf(out, "    %-24s %d\n", n.Keyword, n.Mentions)
			}
		}
		return nil
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect long-term memory",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display vector store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		stats := store.Stats()
		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), stats)
		}

		archived := 0
		for _, t := range store.Texts() {
			if strings.HasPrefix(t, "[PAST MEMORY - ") {
				archived++
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Vector Store:\n")
		fmt.Fprintf(out, "  Chunks:     %d\n", stats.Count)
		fmt.Fprintf(out, "  Archived:   %d\n", archived)
		fmt.Fprintf(out, "  Dimensions: %d\n", stats.Dimensions)
		fmt.Fprintf(out, "  Index type: %v\n", stats.Index["type"])
		fmt.Fprintf(out, "  Index:      %s\n", stats.IndexPath)
		fmt.Fprintf(out, "  Metadata:   %s\n", stats.MetaPath)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List chat sessions or show one session's transcript",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")
		outputJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		log, err := chatlog.Open(cmd.Context(), cfg.ChatLogPath(), logger)
		if err != nil {
			return err
		}
		defer log.Close()

		if sessionID == "" {
			sessions, err := log.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(out, sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(out, "%s  %s  %3d messages\n",
					s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04:05"), s.Messages)
			}
			return nil
		}

		messages, err := log.History(cmd.Context(), sessionID, limit)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(out, messages)
		}
		for _, m := range messages {
			fmt.Fprintf(out, "%s  %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
