package firestore

import (
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
	accountsCollection     = "accounts"
	creditCardsCollection  = "creditCards"
	categoriesCollection   = "categories"

	sourceAgent = "agent"
)

// TransactionDoc is the stored shape of a transaction under
// users/{uid}/transactions. Field names match the web app's documents.
type TransactionDoc struct {
	UserID      string    `firestore:"userId"`
	Amount      float64   `firestore:"amount"`
	Category    string    `firestore:"category"`
	CategoryID  string    `firestore:"categoryId,omitempty"`
	Date        time.Time `firestore:"date"`
	Description string    `firestore:"description"`
	Type        string    `firestore:"type"`
	Efetivado   bool      `firestore:"efetivado"`

	AccountID            string `firestore:"accountId,omitempty"`
	CreditCardID         string `firestore:"creditCardId,omitempty"`
	DestinationAccountID string `firestore:"destinationAccountId,omitempty"`

	IsBudget    *bool `firestore:"isBudget,omitempty"`
	IsFixed     bool  `firestore:"isFixed"`
	IsRecurring *bool `firestore:"isRecurring,omitempty"`

	IAReply string `firestore:"iaReply,omitempty"`

	// UnresolvedFields names reference fields still holding free text,
	// for later reconciliation.
	UnresolvedFields []string  `firestore:"unresolvedFields,omitempty"`
	Source           string    `firestore:"source"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

// AccountDoc is stored under users/{uid}/accounts; the document ID is the account ID.
type AccountDoc struct {
	Name string `firestore:"name"`
}

// CreditCardDoc is stored under users/{uid}/creditCards.
type CreditCardDoc struct {
	Name string `firestore:"name"`
}

// CategoryDoc is stored under users/{uid}/categories.
type CategoryDoc struct {
	Name string `firestore:"name"`
	Type string `firestore:"type"`
}

func toTransactionDoc(userID string, tx *domain.Transaction) *TransactionDoc {
	return &TransactionDoc{
		UserID:               userID,
		Amount:               tx.Amount.InexactFloat64(),
		Category:             tx.Category,
		CategoryID:           tx.CategoryID,
		Date:                 tx.Date,
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
		Source:               sourceAgent,
		CreatedAt:            tx.CreatedAt,
	}
}

func fromTransactionDoc(id string, doc *TransactionDoc) *domain.Transaction {
	unresolved := make(map[string]bool, len(doc.UnresolvedFields))
	for _, f := range doc.UnresolvedFields {
		unresolved[f] = true
	}
	ref := func(field, value string) domain.Reference {
		if unresolved[field] {
			return domain.Unresolved(value)
		}
		return domain.Resolved(value)
	}

	return &domain.Transaction{
		ID:                   id,
		UserID:               doc.UserID,
		Amount:               decimal.NewFromFloat(doc.Amount),
		Category:             doc.Category,
		CategoryID:           doc.CategoryID,
		Date:                 doc.Date,
		Description:          doc.Description,
		Type:                 domain.TransactionType(doc.Type),
		Efetivado:            doc.Efetivado,
		AccountID:            ref("accountId", doc.AccountID),
		CreditCardID:         ref("creditCardId", doc.CreditCardID),
		DestinationAccountID: ref("destinationAccountId", doc.DestinationAccountID),
		IsBudget:             doc.IsBudget,
		IsFixed:              doc.IsFixed,
		IsRecurring:          doc.IsRecurring,
		IAReply:              doc.IAReply,
		CreatedAt:            doc.CreatedAt,
	}
}
