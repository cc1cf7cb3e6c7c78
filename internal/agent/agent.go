package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request is one inbound chat turn. Payload may be a plain string, raw JSON
// or a decoded chat envelope.
type Request struct {
	UserID  string
	ChatID  string
	Payload any
}

// Result is the tri-state outcome of a turn.
type Result struct {
	TurnID      string
	Status      Status
	Reply       string
	RawReply    string
	Transaction *domain.Transaction
	Warnings    []ResolutionWarning

	// Err is set when Status is StatusFailed.
	Err error
	// NotifyErr is informational; a failed delivery never fails the turn.
	NotifyErr error
}

// Config tunes an Agent. Zero values fall back to the package defaults.
type Config struct {
	Location            *time.Location
	DefaultChatID       string
	GenerationTimeout   time.Duration
	PersistenceTimeout  time.Duration
	NotificationTimeout time.Duration
}

// Option configures optional collaborators of an Agent.
type Option func(*Agent)

// WithLogger sets the base logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// WithRecorder enables the interpretation audit trail.
func WithRecorder(r Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithArchiver enables raw payload archiving.
func WithArchiver(ar Archiver) Option {
	return func(a *Agent) { a.archiver = ar }
}

// WithMirror enables mirroring of committed transactions.
func WithMirror(m Mirror) Option {
	return func(a *Agent) { a.mirror = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// Agent turns chat messages into committed transactions.
type Agent struct {
	interpreter *Interpreter
	store       Store
	notifier    Notifier
	recorder    Recorder
	archiver    Archiver
	mirror      Mirror
	cfg         Config
	log         zerolog.Logger
	now         func() time.Time

	pipeline *Pipeline
	notify   *NotifyStep
}

// New creates an Agent. notifier may be nil, in which case replies are only
// returned to the caller.
func New(gen Generator, store Store, notifier Notifier, cfg Config, opts ...Option) *Agent {
	if cfg.Location == nil {
		cfg.Location = DefaultLocation()
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.PersistenceTimeout <= 0 {
		cfg.PersistenceTimeout = DefaultPersistenceTimeout
	}
	if cfg.NotificationTimeout <= 0 {
		cfg.NotificationTimeout = DefaultNotificationTimeout
	}

	a := &Agent{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.interpreter = NewInterpreter(gen, cfg.Location, cfg.GenerationTimeout)
	resolver := NewResolver(cfg.Location)
	resolver.now = a.now

	a.notify = &NotifyStep{notifier: notifier, defaultChatID: cfg.DefaultChatID, timeout: cfg.NotificationTimeout}
	a.pipeline = NewPipeline(
		&IdentifyStep{},
		&ExtractMessageStep{},
		&ArchivePayloadStep{archiver: a.archiver, timeout: cfg.PersistenceTimeout},
		&InterpretStep{interpreter: a.interpreter},
		&RouteStep{},
		&ResolveStep{directory: store, resolver: resolver, timeout: cfg.PersistenceTimeout},
		&PersistStep{writer: store, timeout: cfg.PersistenceTimeout, now: a.now},
		&MirrorStep{mirror: a.mirror, timeout: cfg.PersistenceTimeout},
		a.notify,
	)
	return a
}

// HandleTurn processes one chat turn end to end. It never returns nil.
func (a *Agent) HandleTurn(ctx context.Context, req Request) *Result {
	turnID := uuid.NewString()
	log := a.log.With().Str("turn_id", turnID).Str("user_id", req.UserID).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &TurnState{TurnID: turnID, Request: req}
	err := a.pipeline.Execute(ctx, state)

	res := &Result{
		TurnID:      turnID,
		Transaction: state.Transaction,
		Warnings:    state.Warnings,
		NotifyErr:   state.NotifyErr,
	}
	if state.Interpretation != nil {
		res.RawReply = state.Interpretation.RawReply
	}

	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Err = err
		res.Reply = UserMessage(err)
		res.Transaction = nil
		log.Error().Err(err).Msg("turn failed")
		// A failed write is reported to the caller only.
		if !errors.Is(err, ErrIdentification) && !errors.Is(err, ErrPersistence) {
			res.NotifyErr = a.notify.deliver(ctx, state.ChatID, res.Reply)
		}
	case state.Decision.Action == ActionClarify:
		res.Status = StatusNeedsInput
		res.Reply = state.Reply
	case state.Decision.Action == ActionFallback:
		res.Status = StatusFallback
		res.Reply = state.Reply
	default:
		res.Status = StatusSuccess
		res.Reply = state.Reply
	}

	log.Info().Str("status", string(res.Status)).Msg("turn finished")
	a.record(ctx, state, res)
	return res
}

func (a *Agent) record(ctx context.Context, state *TurnState, res *Result) {
	if a.recorder == nil || state.UserID == "" {
		return
	}

	rec := &domain.Interpretation{
		TurnID:    res.TurnID,
		UserID:    state.UserID,
		Message:   state.Message,
		RawReply:  res.RawReply,
		ModelName: a.interpreter.ModelName(),
		Outcome:   string(res.Status),
		CreatedAt: a.now().UTC(),
	}
	if state.Interpretation != nil && state.Interpretation.Raw != nil {
		if b, err := json.Marshal(state.Interpretation.Raw); err == nil {
			rec.CandidateJSON = string(b)
		}
	}
	if res.Transaction != nil {
		rec.TransactionID = res.Transaction.ID
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	rctx, cancel := withTimeout(context.WithoutCancel(ctx), a.cfg.PersistenceTimeout)
	defer cancel()
	if err := a.recorder.RecordInterpretation(rctx, rec); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("failed to record interpretation")
	}
}
