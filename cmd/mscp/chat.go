package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/mscp/pkg/chatlog"
	"github.com/liliang-cn/mscp/pkg/core"
	"github.com/liliang-cn/mscp/pkg/graph"
	"github.com/liliang-cn/mscp/pkg/llm"
	"github.com/liliang-cn/mscp/pkg/memory"
	"github.com/liliang-cn/mscp/pkg/prompt"
)

const divider = "------------------------------------------------------------"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		watch, _ := cmd.Flags().GetBool("watch")
		noIngest, _ := cmd.Flags().GetBool("no-ingest")
		out := cmd.OutOrStdout()

		gen, err := llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL: cfg.Inference.BaseURL,
			APIKey:  cfg.Inference.APIKey,
			Model:   cfg.Inference.Model,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(out, bannerStyle.Render(banner))
		fmt.Fprintln(out, "  Type /help for commands. Type /exit to quit.")

		store, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if !noIngest {
			stats, err := store.Ingest(ctx, "")
			if err != nil {
				logger.Warn("knowledge ingest failed", "error", err)
			}
			fmt.Fprintln(out, infoStyle.Render(ingestSummary(stats, store.Len())))
		}

		g := openGraph()
		manager, err := memory.NewMemoryManager(store, g, cfg.ManagerConfig(logger))
		if err != nil {
			return err
		}

		session := &chatSession{
			manager: manager,
			store:   store,
			graph:   g,
			gen:     gen,
			opts:    cfg.GenerateOptions(),
			persona: cfg.Inference.Persona,
			dotPath: strings.TrimSuffix(cfg.Path(cfg.Graph.File), ".json") + ".dot",
			out:     out,
		}

		if cfg.ChatLog.Enabled {
			closeLog := session.attachTranscript(ctx, cfg.ChatLogPath(), cfg.Inference.Model)
			defer closeLog()
		}

		if watch {
			w, err := core.NewWatcher(store, "", core.DefaultDebounce)
			if err != nil {
				return err
			}
			defer w.Close()
			w.OnIngest = func(stats core.IngestStats, err error) {
				if err != nil {
					logger.Warn("knowledge re-ingest failed", "error", err)
					return
				}
				logger.Info("knowledge re-ingested", "added", stats.Added, "skipped", stats.Skipped)
			}
			go func() {
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("knowledge watcher stopped", "error", err)
				}
			}()
		}

		fmt.Fprintln(out, mutedStyle.Render(divider))
		return session.run(ctx, cmd.InOrStdin())
	},
}

// chatSession is one interactive conversation.
type chatSession struct {
	manager *memory.MemoryManager
	store   *core.VectorStore
	graph   *graph.ConceptGraph
	gen     llm.Generator
	opts    llm.Options
	persona string
	dotPath string
	out     io.Writer

	transcript *chatlog.Log
	sessionID  string
}

// attachTranscript opens the chat log and starts a session recording every
// turn. A chat log that cannot be opened is logged and skipped.
func (s *chatSession) attachTranscript(ctx context.Context, path, model string) func() {
	log, err := chatlog.Open(ctx, path, logger)
	if err != nil {
		logger.Warn("chat log unavailable", "path", path, "error", err)
		return func() {}
	}
	sess, err := log.NewSession(ctx, os.Getenv("USER"), map[string]any{"model": model})
	if err != nil {
		logger.Warn("chat log session failed", "error", err)
		_ = log.Close()
		return func() {}
	}

	s.transcript, s.sessionID = log, sess.ID
	s.manager.SetTranscript(func(ctx context.Context, role memory.Role, content string) error {
		_, err := log.Append(ctx, sess.ID, string(role), content)
		return err
	})
	return func() { _ = log.Close() }
}

// run reads lines from in until EOF, /exit or cancellation.
func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		if ctx.Err() != nil {
			fmt.Fprintln(s.out, "\n[MSCP] Goodbye!")
			return nil
		}

		fmt.Fprint(s.out, "\n"+userStyle.Render("You:")+" ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out, "\n\n[MSCP] Goodbye!")
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				fmt.Fprintln(s.out, "[MSCP] Goodbye!")
				return nil
			}
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			fmt.Fprintln(s.out, errorStyle.Render("[error] "+err.Error()))
		}
	}
}

// turn answers one user message. Generation failures are shown inline and
// whatever text arrived before the failure is still remembered.
func (s *chatSession) turn(ctx context.Context, text string) error {
	tc, err := s.manager.ProcessUserTurn(ctx, text)
	if err != nil {
		return err
	}

	p := prompt.Assemble(prompt.Input{
		UserInput: text,
		Concepts:  tc.Concepts,
		Chunks:    tc.Chunks,
		History:   tc.History,
		Persona:   s.persona,
	})
	fmt.Fprintln(s.out, infoStyle.Render(fmt.Sprintf("[Ctx: ~%d tokens | Graph: %v | Memory: %d chunks]",
		prompt.EstimateTokens(p), tc.Concepts, len(tc.Chunks))))

	fmt.Fprint(s.out, "\n"+assistantStyle.Render("Assistant:")+" ")
	response, genErr := llm.Collect(s.gen.Generate(ctx, p, s.opts), func(token string) {
		fmt.Fprint(s.out, token)
	})
	fmt.Fprintln(s.out)
	if genErr != nil {
		fmt.Fprintln(s.out, errorStyle.Render("[inference error] "+genErr.Error()))
	}

	if err := s.manager.RecordAssistantTurn(ctx, response); err != nil {
		return err
	}
	fmt.Fprintln(s.out, mutedStyle.Render(divider))
	return nil
}

var chatCommands = [][2]string{
	{"/graph", "Write the concept graph as Graphviz DOT"},
	{"/memory", "Show the short-term chat buffer"},
	{"/ingest", "Re-scan the knowledge directory for new .txt files"},
	{"/clear", "Clear the short-term buffer"},
	{"/history", "Show this session's transcript"},
	{"/help", "Show this help"},
	{"/exit", "Quit"},
}

// command runs a slash command and reports whether the session should end.
func (s *chatSession) command(ctx context.Context, line string) bool {
	name := strings.ToLower(strings.Fields(line)[0])

	switch name {
	case "/exit", "/quit":
		return true

	case "/help":
		fmt.Fprintln(s.out, infoStyle.Render("\n  Available Commands:"))
		for _, c := range chatCommands {
			fmt.Fprintf(s.out, "    %-10s %s\n", commandStyle.Render(c[0]), c[1])
		}

	case "/graph":
		if s.graph.Len() == 0 {
			fmt.Fprintln(s.out, "[Graph] Graph is empty, chat first to build it!")
			return false
		}
		if err := s.graph.Visualize(s.dotPath); err != nil {
			fmt.Fprintln(s.out, errorStyle.Render("[Graph] "+err.Error()))
			return false
		}
		fmt.Fprintf(s.out, "[Graph] Graph saved as %s\n", s.dotPath)

	case "/memory":
		fmt.Fprintln(s.out, infoStyle.Render("\n[Short-Term Buffer]:"))
		fmt.Fprintln(s.out, s.manager.Buffer().FormatForPrompt())

	case "/clear":
		s.manager.Clear()
		fmt.Fprintln(s.out, "[Memory] Short-term memory cleared.")

	case "/ingest":
		fmt.Fprintln(s.out, "[Memory] Re-ingesting knowledge directory ...")
		stats, err := s.store.Ingest(ctx, "")
		if err != nil {
			fmt.Fprintln(s.out, errorStyle.Render("[Memory] "+err.Error()))
		}
		fmt.Fprintln(s.out, ingestSummary(stats, s.store.Len()))

	case "/history":
		s.printTranscript(ctx)

	default:
		fmt.Fprintf(s.out, "Unknown command: %s. Type /help for commands.\n", line)
	}
	return false
}

func (s *chatSession) printTranscript(ctx context.Context) {
	if s.transcript == nil {
		fmt.Fprintln(s.out, "[History] Chat log is disabled.")
		return
	}
	messages, err := s.transcript.History(ctx, s.sessionID, 20)
	if err != nil {
		fmt.Fprintln(s.out, errorStyle.Render("[History] "+err.Error()))
		return
	}
	fmt.Fprintf(s.out, "[History] Session %s\n", s.sessionID)
	for _, m := range messages {
		fmt.Fprintf(s.out, "  %s  %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, m.Content)
	}
}

func ingestSummary(stats core.IngestStats, total int) string {
	if stats.Added == 0 {
		return fmt.Sprintf("[Memory] Knowledge base up to date (%d chunks total).", total)
	}
	return fmt.Sprintf("[Memory] Ingested %d new chunks from %d files (%d chunks total).",
		stats.Added, stats.Files, total)
}
