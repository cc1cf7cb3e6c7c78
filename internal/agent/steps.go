package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/logger"
	"golang.org/x/sync/errgroup"
)

// TurnStep represents a single step of a chat turn.
type TurnStep interface {
	Execute(ctx context.Context, state *TurnState) error
}

// TurnState holds the shared state across all steps of one turn.
type TurnState struct {
	TurnID  string
	Request Request

	UserID  string
	ChatID  string
	Message string

	Interpretation *InterpretResult
	Decision       Decision

	Transaction *domain.Transaction
	Warnings    []ResolutionWarning

	// Reply is the text delivered to the user for this turn.
	Reply     string
	NotifyErr error
}

func (s *TurnState) committing() bool {
	return s.Interpretation != nil && s.Decision.Action == ActionCommit
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Step 1: IdentifyStep rejects turns without a user.
type IdentifyStep struct{}

func (s *IdentifyStep) Execute(ctx context.Context, state *TurnState) error {
	state.UserID = strings.TrimSpace(state.Request.UserID)
	state.ChatID = strings.TrimSpace(state.Request.ChatID)
	if state.UserID == "" {
		return fmt.Errorf("IdentifyStep: %w", ErrIdentification)
	}
	return nil
}

// Step 2: ExtractMessageStep reduces the payload to plain text.
type ExtractMessageStep struct{}

func (s *ExtractMessageStep) Execute(ctx context.Context, state *TurnState) error {
	text, err := ExtractMessage(state.Request.Payload)
	if err != nil {
		return err
	}
	state.Message = text
	return nil
}

// Step 3: ArchivePayloadStep stores the raw inbound payload. Best effort.
type ArchivePayloadStep struct {
	archiver Archiver
	timeout  time.Duration
}

func (s *ArchivePayloadStep) Execute(ctx context.Context, state *TurnState) error {
	if s.archiver == nil {
		return nil
	}
	log := logger.FromContext(ctx)

	body, err := json.Marshal(ArchivedTurn{
		TurnID:     state.TurnID,
		UserID:     state.UserID,
		ChatID:     state.ChatID,
		Message:    state.Message,
		Payload:    payloadJSON(state.Request.Payload),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("could not encode payload for archive")
		return nil
	}

	actx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.archiver.ArchivePayload(actx, state.UserID, state.TurnID, body); err != nil {
		log.Warn().Err(err).Msg("failed to archive payload")
	}
	return nil
}

// ArchivedTurn is the archive record of one inbound turn.
type ArchivedTurn struct {
	TurnID     string          `json:"turn_id"`
	UserID     string          `json:"user_id"`
	ChatID     string          `json:"chat_id,omitempty"`
	Message    string          `json:"message"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// DecodeArchivedTurn parses an archive record.
func DecodeArchivedTurn(b []byte) (*ArchivedTurn, error) {
	var t ArchivedTurn
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("DecodeArchivedTurn: %w", err)
	}
	if t.UserID == "" {
		return nil, fmt.Errorf("DecodeArchivedTurn: %w", ErrIdentification)
	}
	return &t, nil
}

// Request rebuilds the inbound request so the turn can be replayed.
func (t *ArchivedTurn) Request() Request {
	return Request{UserID: t.UserID, ChatID: t.ChatID, Payload: t.Payload}
}

// payloadJSON keeps JSON payloads as-is and encodes anything else.
func payloadJSON(p any) json.RawMessage {
	var raw []byte
	switch v := p.(type) {
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	}
	if raw != nil && json.Valid(raw) {
		return raw
	}
	if raw != nil {
		p = string(raw)
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		encoded, _ = json.Marshal(fmt.Sprint(p))
	}
	return encoded
}

// Step 4: InterpretStep runs both generations.
type InterpretStep struct {
	interpreter *Interpreter
}

func (s *InterpretStep) Execute(ctx context.Context, state *TurnState) error {
	res, err := s.interpreter.Interpret(ctx, state.Message)
	state.Interpretation = res
	return err
}

// Step 5: RouteStep decides between commit, clarification and fallback.
type RouteStep struct{}

func (s *RouteStep) Execute(ctx context.Context, state *TurnState) error {
	state.Decision = Route(state.Interpretation.Candidate, state.Interpretation.RawReply)
	if state.Decision.Action != ActionCommit {
		state.Reply = state.Decision.Reply
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("action", state.Decision.Action.String()).
		Msg("turn routed")
	return nil
}

// Step 6: ResolveStep loads the user's directory and resolves the candidate.
// Only committing turns reach storage.
type ResolveStep struct {
	directory Directory
	resolver  *Resolver
	timeout   time.Duration
}

func (s *ResolveStep) Execute(ctx context.Context, state *TurnState) error {
	if !state.committing() {
		return nil
	}

	known, err := s.load(ctx, state.UserID)
	if err != nil {
		return err
	}

	tx, warnings := s.resolver.Resolve(state.Interpretation.Candidate, known)
	log := logger.FromContext(ctx)
	for _, w := range warnings {
		log.Warn().Str("field", w.Field).Str("value", w.Value).Msg("reference left unresolved")
	}
	state.Transaction = tx
	state.Warnings = warnings
	return nil
}

func (s *ResolveStep) load(ctx context.Context, userID string) (Known, error) {
	lctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var known Known
	g, gctx := errgroup.WithContext(lctx)
	g.Go(func() error {
		accounts, err := s.directory.ListAccounts(gctx, userID)
		if err != nil {
			return wrapCall(ErrPersistence, "list accounts", err)
		}
		known.Accounts = accounts
		return nil
	})
	g.Go(func() error {
		cards, err := s.directory.ListCreditCards(gctx, userID)
		if err != nil {
			return wrapCall(ErrPersistence, "list credit cards", err)
		}
		known.CreditCards = cards
		return nil
	})
	g.Go(func() error {
		categories, err := s.directory.ListCategories(gctx, userID)
		if err != nil {
			return wrapCall(ErrPersistence, "list categories", err)
		}
		known.Categories = categories
		return nil
	})
	if err := g.Wait(); err != nil {
		return Known{}, err
	}
	return known, nil
}

// Step 7: PersistStep writes the resolved transaction.
type PersistStep struct {
	writer  TransactionWriter
	timeout time.Duration
	now     func() time.Time
}

func (s *PersistStep) Execute(ctx context.Context, state *TurnState) error {
	if !state.committing() {
		return nil
	}
	tx := state.Transaction
	if tx == nil {
		return fmt.Errorf("%w: no resolved transaction", ErrPersistence)
	}
	tx.UserID = state.UserID
	tx.CreatedAt = s.now().UTC()

	pctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.writer.SaveTransaction(pctx, state.UserID, tx)
	if err != nil {
		return wrapCall(ErrPersistence, "save transaction", err)
	}
	tx.ID = id

	log := logger.FromContext(ctx)
	log.Info().
		Str("transaction_id", id).
		Str("type", string(tx.Type)).
		Str("amount", tx.Amount.String()).
		Msg("transaction saved")
	return nil
}

// Step 8: MirrorStep copies the saved transaction to a secondary system. Best effort.
type MirrorStep struct {
	mirror  Mirror
	timeout time.Duration
}

func (s *MirrorStep) Execute(ctx context.Context, state *TurnState) error {
	if s.mirror == nil || !state.committing() || state.Transaction == nil {
		return nil
	}
	mctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.mirror.MirrorTransaction(mctx, state.UserID, state.Transaction); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("transaction_id", state.Transaction.ID).
			Msg("failed to mirror transaction")
	}
	return nil
}

// Step 9: NotifyStep delivers the turn's reply. A committed transaction is
// confirmed on the originating chat or the default one; other replies only
// go back to an interactive chat. Failures never fail the turn.
type NotifyStep struct {
	notifier      Notifier
	defaultChatID string
	timeout       time.Duration
}

func (s *NotifyStep) Execute(ctx context.Context, state *TurnState) error {
	chatID := state.ChatID
	if state.committing() {
		state.Reply = Confirmation(state.Transaction, state.Warnings, state.Message, state.Interpretation.RawReply)
		if chatID == "" {
			chatID = s.defaultChatID
		}
	}
	state.NotifyErr = s.deliver(ctx, chatID, state.Reply)
	return nil
}

func (s *NotifyStep) deliver(ctx context.Context, chatID, text string) error {
	if s.notifier == nil || chatID == "" || text == "" {
		return nil
	}
	nctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.notifier.Send(nctx, chatID, text); err != nil {
		err = wrapCall(ErrNotification, "send", err)
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("chat_id", chatID).Msg("notification failed")
		return err
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []TurnStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...TurnStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *TurnState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("turn step %d failed: %w", i+1, err)
		}
	}
	return nil
}
