package handlers

import (
	"time"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionView is the JSON shape of a stored transaction.
type TransactionView struct {
	ID                   string          `json:"id"`
	Amount               decimal.Decimal `json:"amount"`
	Category             string          `json:"category"`
	CategoryID           string          `json:"categoryId,omitempty"`
	Date                 string          `json:"date"`
	Description          string          `json:"description,omitempty"`
	Type                 string          `json:"type"`
	Efetivado            bool            `json:"efetivado"`
	AccountID            string          `json:"accountId,omitempty"`
	CreditCardID         string          `json:"creditCardId,omitempty"`
	DestinationAccountID string          `json:"destinationAccountId,omitempty"`
	IsBudget             *bool           `json:"isBudget,omitempty"`
	IsFixed              bool            `json:"isFixed"`
	IsRecurring          *bool           `json:"isRecurring,omitempty"`
	IAReply              string          `json:"iaReply,omitempty"`
	UnresolvedFields     []string        `json:"unresolvedFields,omitempty"`
	CreatedAt            *time.Time      `json:"createdAt,omitempty"`
}

// NewTransactionView converts a domain transaction for output.
func NewTransactionView(tx *domain.Transaction) *TransactionView {
	if tx == nil {
		return nil
	}
	v := &TransactionView{
		ID:                   tx.ID,
		Amount:               tx.Amount,
		Category:             tx.Category,
		CategoryID:           tx.CategoryID,
		Date:                 tx.Date.Format(time.DateOnly),
		Description:          tx.Description,
		Type:                 string(tx.Type),
		Efetivado:            tx.Efetivado,
		AccountID:            tx.AccountID.Value(),
		CreditCardID:         tx.CreditCardID.Value(),
		DestinationAccountID: tx.DestinationAccountID.Value(),
		IsBudget:             tx.IsBudget,
		IsFixed:              tx.IsFixed,
		IsRecurring:          tx.IsRecurring,
		IAReply:              tx.IAReply,
		UnresolvedFields:     tx.UnresolvedFields(),
	}
	if !tx.CreatedAt.IsZero() {
		created := tx.CreatedAt
		v.CreatedAt = &created
	}
	return v
}

// WarningView is a reference that matched nothing in the user's directory.
type WarningView struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// TurnResponse is the JSON body returned for an agent turn.
type TurnResponse struct {
	TurnID      string           `json:"turnId"`
	Status      agent.Status     `json:"status"`
	Reply       string           `json:"reply"`
	RawReply    string           `json:"rawReply,omitempty"`
	Transaction *TransactionView `json:"transaction,omitempty"`
	Warnings    []WarningView    `json:"warnings,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// NewTurnResponse converts an agent result for output. Internal error text
// is never exposed; Error carries the failure category only.
func NewTurnResponse(res *agent.Result) *TurnResponse {
	out := &TurnResponse{
		TurnID:      res.TurnID,
		Status:      res.Status,
		Reply:       res.Reply,
		RawReply:    res.RawReply,
		Transaction: NewTransactionView(res.Transaction),
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, WarningView{Field: w.Field, Value: w.Value})
	}
	if res.Status == agent.StatusFailed {
		out.Error = errorCategory(res.Err)
	}
	return out
}
