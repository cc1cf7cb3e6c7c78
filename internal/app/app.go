// Package app wires configuration into a running agent and its backends.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/config"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/gcsuploader"
	infraBQ "github.com/dvloznov/finance-agent/internal/infra/bigquery"
	infraFS "github.com/dvloznov/finance-agent/internal/infra/firestore"
	"github.com/dvloznov/finance-agent/internal/infra/memory"
	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/dvloznov/finance-agent/internal/jobs/inmemory"
	"github.com/dvloznov/finance-agent/internal/notionsync"
	"github.com/dvloznov/finance-agent/internal/telegram"
	"github.com/rs/zerolog"
)

// Store is the storage surface shared by every backend.
type Store interface {
	agent.Store
	ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}

// Options select what Build wires besides the agent itself.
type Options struct {
	// Generator overrides the Gemini client, for tests and offline use.
	Generator agent.Generator
	// Notifier overrides the configured chat channel.
	Notifier agent.Notifier
	// QueueDeliveries routes notifications through the retrying job queue.
	QueueDeliveries bool
}

// App holds the agent and every backend it was built with.
type App struct {
	Agent  *agent.Agent
	Store  Store
	Mirror *notionsync.Mirror

	// Optional backends; nil when not configured.
	Recorder *infraBQ.InterpretationRecorder
	Archiver *gcsuploader.Archiver
	Jobs     jobs.JobStore
	Linker   *telegram.Linker

	queue   *inmemory.Queue
	closers []io.Closer
	log     zerolog.Logger
}

// Build creates the backends named by cfg and an agent on top of them.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	agentCfg, err := cfg.AgentConfig()
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	if err := a.buildStore(ctx, cfg); err != nil {
		return nil, err
	}

	gen := opts.Generator
	if gen == nil {
		if err := cfg.RequireGemini(); err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		g, err := agent.NewGeminiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		gen = g
	}

	agentOpts := []agent.Option{agent.WithLogger(log)}

	if cfg.Audit.ProjectID != "" {
		rec, err := infraBQ.NewInterpretationRecorder(ctx, cfg.Audit.ProjectID, cfg.Audit.Dataset)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		a.Recorder = rec
		a.closers = append(a.closers, rec)
		agentOpts = append(agentOpts, agent.WithRecorder(rec))
	}

	if cfg.Archive.Bucket != "" {
		ar, err := gcsuploader.NewArchiver(ctx, cfg.Archive.Bucket)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		a.Archiver = ar
		a.closers = append(a.closers, ar)
		agentOpts = append(agentOpts, agent.WithArchiver(ar))
	}

	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		a.Mirror = notionsync.NewMirror(notionsync.NewNotionClient(cfg.Notion.Token), cfg.Notion.DatabaseID)
		agentOpts = append(agentOpts, agent.WithMirror(a.Mirror))
	}

	if len(cfg.Telegram.Users) > 0 {
		a.Linker = telegram.NewLinker(cfg.Telegram.Users)
	}

	notifier, err := a.buildNotifier(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	a.Agent = agent.New(gen, a.Store, notifier, agentCfg, agentOpts...)
	ok = true
	return a, nil
}

func (a *App) buildStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		a.Store = memory.NewStore()
	case config.BackendFirestore:
		fs, err := infraFS.NewStore(ctx, cfg.Storage.ProjectID)
		if err != nil {
			return fmt.Errorf("Build: %w", err)
		}
		a.Store = fs
		a.closers = append(a.closers, fs)
	default:
		return fmt.Errorf("Build: unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}

// buildNotifier picks the chat channel. With QueueDeliveries the channel is
// driven by queue workers and the agent only enqueues.
func (a *App) buildNotifier(ctx context.Context, cfg *config.Config, opts Options) (agent.Notifier, error) {
	var sender agent.Notifier = opts.Notifier
	if sender == nil && cfg.Telegram.BotToken != "" {
		tg, err := telegram.NewNotifier(cfg.Telegram.BotToken)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		sender = tg
	}
	if sender == nil {
		a.log.Warn().Msg("No chat channel configured; replies are only returned to callers")
		return nil, nil
	}
	if !opts.QueueDeliveries {
		return sender, nil
	}

	store := inmemory.NewStore()
	a.Jobs = store
	a.queue = inmemory.NewQueue(cfg.Delivery.QueueSize, store, inmemory.WithWorkers(cfg.Delivery.Workers))
	if err := a.queue.Start(ctx, jobs.DeliveryHandler(sender, cfg.Agent.NotificationTimeout)); err != nil {
		return nil, fmt.Errorf("Build: starting delivery queue: %w", err)
	}
	return jobs.NewQueuedNotifier(a.queue, cfg.Delivery.MaxRetries), nil
}

// Close stops the delivery queue and releases every client.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping delivery queue: %w", err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
