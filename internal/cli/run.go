package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/betterbytes/harvest/internal/config"
	"github.com/betterbytes/harvest/internal/diag"
	"github.com/betterbytes/harvest/internal/engine"
	"github.com/betterbytes/harvest/internal/ir"
	"github.com/betterbytes/harvest/internal/runlog"
	"github.com/betterbytes/harvest/internal/tools"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Tokens overrides the invocation token generator, for tests that need
	// stable tokens. Nil means UUIDv7.
	Tokens engine.TokenGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run the pipeline to fixpoint",
		Long: `Run the translation pipeline described by the config file.

The source tree is ingested as revision 1 and tools run until no candidate
remains. Diagnostics land in the configured directory, the run log in the
configured SQLite database.

Example:
  harvest run ./harvest.yaml
  harvest run ./harvest.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	return cmd
}

func runPipeline(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	collector, err := diag.NewCollector(cfg.Diagnostics.Dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create diagnostics dir", err)
	}
	defer func() {
		if closeErr := collector.Close(); closeErr != nil {
			slog.Error("error closing diagnostics", "error", closeErr)
		}
	}()

	slog.Info("opening run log", "path", cfg.RunLog.Path)
	log, err := runlog.Open(cfg.RunLog.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer func() {
		if closeErr := log.Close(); closeErr != nil {
			slog.Error("error closing run log", "error", closeErr)
		}
	}()

	tokens := opts.Tokens
	if tokens == nil {
		tokens = engine.UUIDv7Generator{}
	}
	store := ir.NewStore()
	eng := engine.New(store, collector, log,
		engine.WithCapacity(engine.Resources{CPU: cfg.Resources.CPU, GPU: cfg.Resources.GPU}),
		engine.WithQuota(cfg.Quota),
		engine.WithTokenGenerator(tokens),
	)
	eng.Register(
		tools.NewLoadSource(),
		tools.NewProjectKind(),
		tools.NewTryBuild(cfg.Build.Compiler, cfg.Build.Flags...),
	)
	if err := eng.Seed("load_source", map[string]any{"path": cfg.Source.Path}); err != nil {
		return WrapExitError(ExitCommandError, "failed to seed pipeline", err)
	}

	// Use the command's context if available (for testing), otherwise create
	// one, and cancel it on SIGINT/SIGTERM for a clean shutdown.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := eng.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "pipeline failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pipeline reached fixpoint at revision %s\n", store.Revision())
	fmt.Fprintf(cmd.OutOrStdout(), "diagnostics: %s\n", collector.Dir())
	return nil
}
