package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-search/pkg/clients"
	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/search"
	"github.com/mikeboe/deep-search/pkg/store/memory"
	"github.com/mikeboe/deep-search/pkg/stream"
	"github.com/mikeboe/deep-search/pkg/view"
)

// app holds the CLI flags and the constructors of its collaborators, so
// tests can run commands against fakes.
type app struct {
	topic     string
	depth     string
	sessionID string
	runID     string
	rawFrames bool

	newModel  func(ctx context.Context, cfg *config.Config) (research.Model, error)
	newSearch func(cfg *config.Config) (research.SearchProvider, error)
	openStore func(ctx context.Context, cfg *config.Config, durable bool) (research.Store, func(), error)
}

func newApp() *app {
	return &app{
		newModel: clients.New,
		newSearch: func(cfg *config.Config) (research.SearchProvider, error) {
			return search.New(cfg.SearchProvider, cfg.TavilyApiKey, cfg.SearchRPS)
		},
		openStore: openStore,
	}
}

func main() {
	// Load .env file
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := newRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deepsearch",
		Short: "A terminal-based deep search agent",
		Long:  `deepsearch plans five web searches and five analyses for a topic, runs them in order and writes a cited report.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Research a topic and print the report",
		RunE:  a.runResearch,
	}
	runCmd.Flags().StringVarP(&a.topic, "topic", "t", "", "The research topic")
	runCmd.Flags().StringVarP(&a.depth, "depth", "d", string(research.DepthBasic), "Search depth: basic or advanced")
	runCmd.Flags().StringVarP(&a.sessionID, "session", "s", "", "Conversation id to attach the run to (default: new)")
	runCmd.Flags().BoolVar(&a.rawFrames, "frames", false, "Print the raw event stream instead of progress lines")

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Reconstruct the progress view of a stored run",
		RunE:  a.viewRun,
	}
	viewCmd.Flags().StringVar(&a.runID, "id", "", "The run (message) id")
	_ = viewCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(runCmd, viewCmd)
	return rootCmd
}

// openStore returns the pgx store when DATABASE_URL is set and an in-memory
// store otherwise. A durable store is required to read runs of earlier
// processes. The returned func releases the connection pool.
func openStore(ctx context.Context, cfg *config.Config, durable bool) (research.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		if durable {
			return nil, nil, errors.New("DATABASE_URL is required to view stored runs")
		}
		return memory.New(), func() {}, nil
	}
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, int32(cfg.MaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return database.NewRunStore(db), db.Close, nil
}

func (a *app) runResearch(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("topic") {
		// Interactive Mode
		fmt.Fprint(cmd.OutOrStdout(), "Enter research topic: ")
		input, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		a.topic = strings.TrimSpace(input)
	}
	if strings.TrimSpace(a.topic) == "" {
		return errors.New("topic cannot be empty")
	}
	if a.sessionID == "" {
		a.sessionID = uuid.NewString()
	}

	ctx := cmd.Context()
	cfg := config.Load()
	model, err := a.newModel(ctx, cfg)
	if err != nil {
		return err
	}
	searcher, err := a.newSearch(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := a.openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := research.NewEngine(cfg.EngineConfig(), model, searcher, store)
	out := cmd.OutOrStdout()
	emitter := progressPrinter(out)
	if a.rawFrames {
		enc := stream.NewEncoder(out)
		emitter = research.EmitterFunc(func(f research.Frame) { _ = enc.Encode(f) })
	}

	result, err := engine.Run(ctx, research.Request{
		RunID:     uuid.NewString(),
		Topic:     a.topic,
		SessionID: a.sessionID,
		Depth:     research.Depth(a.depth),
	}, emitter)
	if err != nil {
		return err
	}
	if !a.rawFrames {
		fmt.Fprintf(out, "\n%s\n\nRun id: %s\n", result.Report, result.RunID)
	}
	return nil
}

// progressPrinter prints one line per finished step and the progress.
func progressPrinter(w io.Writer) research.Emitter {
	state := view.Initial()
	return research.EmitterFunc(func(f research.Frame) {
		state = view.Apply(state, f)
		switch d := f.Data.(type) {
		case research.StepCompleteData:
			fmt.Fprintf(w, "[%3d%%] step %2d/%d %-9s %s\n", state.Progress, d.Step, research.TotalSteps, d.Status, d.Title)
		case research.ErrorData:
			fmt.Fprintf(w, "error: %s\n", d.Message)
		}
	})
}

func (a *app) viewRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()
	store, closeStore, err := a.openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := store.GetRun(ctx, a.runID)
	if err != nil {
		return err
	}
	state, err := view.Reconstruct(*rec)
	if errors.Is(err, research.ErrRecoveryUnavailable) {
		fmt.Fprintln(cmd.OutOrStdout(), `{"recoverable":false}`)
		return nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
