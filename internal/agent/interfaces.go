package agent

import (
	"context"

	"github.com/dvloznov/finance-agent/internal/domain"
)

// Generator is the generative model capability. Both calls receive the same
// system instructions and user prompt.
type Generator interface {
	// GenerateText returns a free-text answer.
	GenerateText(ctx context.Context, system, prompt string) (string, error)

	// GenerateObject returns a decoded JSON object shaped by fields.
	// It returns ErrEmptyObject when the model produced nothing usable.
	GenerateObject(ctx context.Context, system, prompt string, fields []FieldSpec) (any, error)

	// ModelName identifies the model for audit records.
	ModelName() string
}

// Directory reads the user's accounts, cards and categories. It is queried
// on every turn; nothing is cached between turns.
type Directory interface {
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	ListCreditCards(ctx context.Context, userID string) ([]domain.CreditCard, error)
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
}

// TransactionWriter appends a transaction to the user's own collection and
// returns the identifier it assigned.
type TransactionWriter interface {
	SaveTransaction(ctx context.Context, userID string, tx *domain.Transaction) (string, error)
}

// Store combines everything the agent needs from storage.
type Store interface {
	Directory
	TransactionWriter
}

// Notifier delivers a text message to a chat channel.
type Notifier interface {
	Send(ctx context.Context, chatID, text string) error
}

// Recorder keeps an audit trail of interpretations. Failures are logged only.
type Recorder interface {
	RecordInterpretation(ctx context.Context, rec *domain.Interpretation) error
}

// Archiver stores the raw inbound payload of a turn. Failures are logged only.
type Archiver interface {
	ArchivePayload(ctx context.Context, userID, turnID string, payload []byte) error
}

// Mirror copies a committed transaction to a secondary system. Failures are
// logged only.
type Mirror interface {
	MirrorTransaction(ctx context.Context, userID string, tx *domain.Transaction) error
}
