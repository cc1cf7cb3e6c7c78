package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of transaction kinds the agent can produce.
type TransactionType string

const (
	TypeIncome             TransactionType = "income"
	TypeExpense            TransactionType = "expense"
	TypeCreditCardReversal TransactionType = "credit_card_reversal"
	TypeTransfer           TransactionType = "transfer"
)

// TransactionTypes returns every valid TransactionType in declaration order.
func TransactionTypes() []TransactionType {
	return []TransactionType{TypeIncome, TypeExpense, TypeCreditCardReversal, TypeTransfer}
}

// Valid reports whether t is one of the four known types.
func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Label returns the pt-BR display name used in chat confirmations.
func (t TransactionType) Label() string {
	switch t {
	case TypeIncome:
		return "Receita"
	case TypeExpense:
		return "Despesa"
	case TypeCreditCardReversal:
		return "Estorno de cartão"
	case TypeTransfer:
		return "Transferência"
	default:
		return string(t)
	}
}

// Candidate is a transaction as interpreted from free text, before any
// defaulting or identifier resolution. It is never persisted.
type Candidate struct {
	Amount      decimal.Decimal
	Category    string
	Date        *time.Time // nil when the message carried no usable date
	Description string
	Type        TransactionType
	Efetivado   bool

	AccountID            Reference
	CreditCardID         Reference
	DestinationAccountID Reference

	IsBudget    *bool
	IsFixed     bool
	IsRecurring *bool

	IAReply string
	IADoubt bool
}

// Transaction is a resolved candidate: Date is always set and references
// have been matched against the user's accounts where possible.
// ID and UserID are filled by the store at write time.
type Transaction struct {
	ID     string
	UserID string

	Amount      decimal.Decimal
	Category    string
	CategoryID  string // empty when the label matched no known category
	Date        time.Time
	Description string
	Type        TransactionType
	Efetivado   bool

	AccountID            Reference
	CreditCardID         Reference
	DestinationAccountID Reference

	IsBudget    *bool
	IsFixed     bool
	IsRecurring *bool

	IAReply string
	IADoubt bool

	CreatedAt time.Time
}

// UnresolvedFields lists the reference fields still carrying free text.
func (t *Transaction) UnresolvedFields() []string {
	var fields []string
	if t.AccountID.IsUnresolved() {
		fields = append(fields, "accountId")
	}
	if t.CreditCardID.IsUnresolved() {
		fields = append(fields, "creditCardId")
	}
	if t.DestinationAccountID.IsUnresolved() {
		fields = append(fields, "destinationAccountId")
	}
	return fields
}

// Account is a funding account owned by a user.
type Account struct {
	ID   string
	Name string
}

// CreditCard is a credit card owned by a user.
type CreditCard struct {
	ID   string
	Name string
}

// Category is a user-defined transaction category.
type Category struct {
	ID   string
	Name string
	Type string
}
