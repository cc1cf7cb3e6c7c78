package agent

import (
	"strings"

	"github.com/dvloznov/finance-agent/internal/domain"
)

// FieldKind is the semantic type of a candidate field.
type FieldKind string

const (
	KindNumber  FieldKind = "number"
	KindString  FieldKind = "string"
	KindBoolean FieldKind = "boolean"
	KindDate    FieldKind = "date"
	KindEnum    FieldKind = "enum"
)

// FieldSpec describes one field of the candidate object. The same table
// drives the prompt text, the Gemini response schema and the validator.
type FieldSpec struct {
	Name        string
	Kind        FieldKind
	Optional    bool // may be omitted entirely
	Nullable    bool // may be null; absence is treated as null
	Enum        []string
	Description string
}

// Required reports whether a missing value is a validation failure.
func (f FieldSpec) Required() bool {
	return !f.Optional && !f.Nullable
}

// TypeLabel renders the human-readable type used in the instructions,
// e.g. `"income" | "expense"` or `string (optional)`.
func (f FieldSpec) TypeLabel() string {
	var b strings.Builder
	switch f.Kind {
	case KindEnum:
		quoted := make([]string, len(f.Enum))
		for i, v := range f.Enum {
			quoted[i] = `"` + v + `"`
		}
		b.WriteString(strings.Join(quoted, " | "))
	case KindDate:
		b.WriteString("string (ISO 8601 date)")
	default:
		b.WriteString(string(f.Kind))
	}
	if f.Nullable {
		b.WriteString(" or null")
	}
	if f.Optional {
		b.WriteString(" (optional)")
	}
	return b.String()
}

func transactionTypeNames() []string {
	types := domain.TransactionTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

// CandidateFields is the canonical field table of a transaction candidate.
var CandidateFields = []FieldSpec{
	{Name: "amount", Kind: KindNumber, Description: "positive value of the transaction, no currency symbol"},
	{Name: "category", Kind: KindString, Description: "category name as the user calls it"},
	{Name: "date", Kind: KindDate, Nullable: true, Description: "date of the transaction, null when the message does not state one"},
	{Name: "description", Kind: KindString, Description: "short description of the transaction"},
	{Name: "type", Kind: KindEnum, Enum: transactionTypeNames(), Description: "kind of transaction"},
	{Name: "efetivado", Kind: KindBoolean, Description: "true when the transaction already happened, false when planned"},
	{Name: "accountId", Kind: KindString, Optional: true, Description: "name of the account that funds or receives the money"},
	{Name: "creditCardId", Kind: KindString, Optional: true, Description: "name of the credit card used"},
	{Name: "destinationAccountId", Kind: KindString, Optional: true, Description: "name of the account receiving a transfer"},
	{Name: "isBudget", Kind: KindBoolean, Optional: true, Description: "true only when the user declares a new budget"},
	{Name: "isFixed", Kind: KindBoolean, Description: "true only when the user says the entry is fixed or recurring"},
	{Name: "isRecurring", Kind: KindBoolean, Optional: true, Description: "true when the entry repeats"},
	{Name: "iaReply", Kind: KindString, Description: "your comment, question or confirmation to the user"},
	{Name: "iaDoubt", Kind: KindBoolean, Optional: true, Description: "true when you need an answer from the user before saving"},
}

// FieldByName looks up a field in CandidateFields.
func FieldByName(name string) (FieldSpec, bool) {
	for _, f := range CandidateFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func mustField(name string) FieldSpec {
	f, ok := FieldByName(name)
	if !ok {
		panic("agent: unknown candidate field " + name)
	}
	return f
}
