package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"submind/internal/config"
	"submind/internal/docstore"
	"submind/internal/embedding"
	"submind/internal/knowledge"
	"submind/internal/llm"
	"submind/internal/logging"
	"submind/internal/research"
	"submind/internal/scheduler"
	"submind/internal/store"
	"submind/internal/submind"
	"submind/internal/types"
)

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "submind",
	Short: "submind - background thinkers with persistent memory",
	Long: `submind runs per-founder agents that work through pending thoughts on a
schedule: they research topics through an external job service, ask follow-up
questions, plan actions, and keep a memory document up to date.

Run "submind daemon" to keep every tier ticking, or "submind run" for one
scheduled invocation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize(cfg.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Base()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "submind.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout (0 = none)")

	rootCmd.AddCommand(runCmd, daemonCmd, statusCmd)
	rootCmd.AddCommand(agentsCmd, thoughtCmd)
	rootCmd.AddCommand(researchCmd, askCmd, answerCmd, reflectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext returns a context cancelled by SIGINT/SIGTERM or the timeout.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// =============================================================================
// WIRING
// =============================================================================

// app holds the opened stores and, when requested, the engine.
type app struct {
	store  *store.Store
	docs   *docstore.DocStore
	engine *submind.Engine
}

func (a *app) Close() {
	if a.docs != nil {
		a.docs.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// openStores opens the relational store and the Memory Store.
func openStores() (*app, error) {
	st, err := store.Open(cfg.Database.Path, cfg.GetBusyTimeout())
	if err != nil {
		return nil, err
	}
	docs, err := docstore.Open(cfg.Documents.Path)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{store: st, docs: docs}, nil
}

// openEngine opens the stores and wires the engine's external collaborators.
func openEngine(ctx context.Context) (*app, error) {
	a, err := openStores()
	if err != nil {
		return nil, err
	}

	gen, structured, err := llm.Build(ctx, cfg.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}

	var index types.KnowledgeIndex
	if engine, err := embedding.NewEngine(cfg.Embedding); err != nil {
		logger.Warn("Embedding engine unavailable, related-thought search disabled", zap.Error(err))
	} else {
		index = knowledge.New(engine, a.store)
	}

	a.engine, err = submind.New(submind.Deps{
		Store:      a.store,
		Docs:       a.docs,
		Index:      index,
		Jobs:       research.NewClient(cfg.ResearchAPI, cfg.GetResearchTimeout()),
		Gen:        gen,
		Structured: structured,
		Config:     cfg,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("Engine ready",
		zap.String("db", cfg.Database.Path),
		zap.Bool("vec", a.store.VecEnabled()),
		zap.Bool("index", index != nil))
	return a, nil
}

func newScheduler(a *app) *scheduler.Scheduler {
	return scheduler.New(a.store, a.engine, cfg.Scheduler)
}

// reportTier prints a tier summary and returns its aggregate error.
func reportTier(cmd *cobra.Command, report *scheduler.TierReport) error {
	processed, failed := 0, 0
	for _, run := range report.Runs {
		processed += run.Processed
		failed += run.Failed
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d agents run, %d locked, %d thoughts processed, %d failed, %d research completed\n",
		report.Schedule, len(report.Runs), len(report.Locked), processed, failed, report.ResearchCompleted)

	if err := report.Err(); err != nil {
		logger.Warn("Invocation finished with errors", zap.Error(err))
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			return fmt.Errorf("%d errors, first: %w", len(joined.Unwrap()), joined.Unwrap()[0])
		}
		return err
	}
	return nil
}
