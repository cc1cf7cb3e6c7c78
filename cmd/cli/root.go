package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/finance-agent/internal/app"
	"github.com/dvloznov/finance-agent/internal/config"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	memory     bool
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "finagent",
		Short: "Personal finance agent: turn chat messages into transactions",
		Long: `finagent runs the finance chat agent from the command line.
It reads the same configuration as the API server (config.yaml, .env and
FINAGENT_* environment variables).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&g.memory, "memory", false, "use the in-memory store instead of the configured backend")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newPromptCmd(),
		newTurnCmd(g),
		newReplayCmd(g),
		newNotionSyncCmd(g),
		newInterpretationsCmd(g),
	)
	return root
}

func (g *globals) load(cmd *cobra.Command) error {
	if cmd.Name() == "prompt" {
		return nil
	}
	if g.memory {
		// Firestore settings are irrelevant for a memory run.
		if err := os.Setenv(config.EnvPrefix+"_STORAGE_BACKEND", config.BackendMemory); err != nil {
			return err
		}
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	log, err := logger.NewWithLevel(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	g.cfg, g.log = cfg, log
	return nil
}

// build wires the application for one command run.
func (g *globals) build(ctx context.Context, opts app.Options) (*app.App, context.Context, error) {
	ctx = logger.WithContext(ctx, g.log)
	a, err := app.Build(ctx, g.cfg, g.log, opts)
	if err != nil {
		return nil, ctx, fmt.Errorf("initializing agent: %w", err)
	}
	return a, ctx, nil
}
