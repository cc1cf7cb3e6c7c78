package agent

import (
	"strings"
	"time"
	"unicode"

	"github.com/dvloznov/finance-agent/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a display name for matching: diacritics are stripped,
// letters lowercased, anything other than letters, digits and spaces dropped,
// and runs of whitespace collapsed.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Entry is a canonical record that a free-text reference can resolve to.
type Entry struct {
	ID   string
	Name string
}

// AccountEntries adapts accounts for ResolveReference.
func AccountEntries(accounts []domain.Account) []Entry {
	entries := make([]Entry, len(accounts))
	for i, a := range accounts {
		entries[i] = Entry{ID: a.ID, Name: a.Name}
	}
	return entries
}

// CreditCardEntries adapts credit cards for ResolveReference.
func CreditCardEntries(cards []domain.CreditCard) []Entry {
	entries := make([]Entry, len(cards))
	for i, c := range cards {
		entries[i] = Entry{ID: c.ID, Name: c.Name}
	}
	return entries
}

// ResolveReference maps an unresolved name to the first entry whose id equals
// it or whose normalized name equals its normalized form. Absent and resolved
// references are returned unchanged, as is a name with no match.
func ResolveReference(ref domain.Reference, entries []Entry) domain.Reference {
	if !ref.IsUnresolved() {
		return ref
	}
	value := ref.Value()
	for _, e := range entries {
		if e.ID != "" && e.ID == value {
			return domain.Resolved(e.ID)
		}
	}
	want := NormalizeName(value)
	if want == "" {
		return ref
	}
	for _, e := range entries {
		if e.ID != "" && NormalizeName(e.Name) == want {
			return domain.Resolved(e.ID)
		}
	}
	return ref
}

// Known is a per-turn snapshot of the user's directory.
type Known struct {
	Accounts    []domain.Account
	CreditCards []domain.CreditCard
	Categories  []domain.Category
}

// ResolutionWarning reports a reference left as free text.
type ResolutionWarning struct {
	Field string
	Value string
}

// Resolver applies date defaulting and identifier normalization.
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// NewResolver returns a Resolver anchoring missing dates to "now" in loc.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = DefaultLocation()
	}
	return &Resolver{loc: loc, now: time.Now}
}

// Location returns the reference timezone.
func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve turns a candidate into a transaction with a concrete date and
// references matched against known.
func (r *Resolver) Resolve(c *domain.Candidate, known Known) (*domain.Transaction, []ResolutionWarning) {
	tx := &domain.Transaction{
		Amount:               c.Amount,
		Category:             c.Category,
		Description:          c.Description,
		Type:                 c.Type,
		Efetivado:            c.Efetivado,
		AccountID:            c.AccountID,
		CreditCardID:         c.CreditCardID,
		DestinationAccountID: c.DestinationAccountID,
		IsBudget:             c.IsBudget,
		IsFixed:              c.IsFixed,
		IsRecurring:          c.IsRecurring,
		IAReply:              c.IAReply,
		IADoubt:              c.IADoubt,
	}
	if c.Date != nil {
		tx.Date = *c.Date
	} else {
		tx.Date = r.now().In(r.loc)
	}
	return tx, r.Apply(tx, known)
}

// Apply resolves the references of tx in place. Running it again on its own
// output changes nothing.
func (r *Resolver) Apply(tx *domain.Transaction, known Known) []ResolutionWarning {
	if tx.Date.IsZero() {
		tx.Date = r.now().In(r.loc)
	}

	accounts := AccountEntries(known.Accounts)
	tx.AccountID = ResolveReference(tx.AccountID, accounts)
	tx.CreditCardID = ResolveReference(tx.CreditCardID, CreditCardEntries(known.CreditCards))
	tx.DestinationAccountID = ResolveReference(tx.DestinationAccountID, accounts)

	var warnings []ResolutionWarning
	for _, field := range tx.UnresolvedFields() {
		warnings = append(warnings, ResolutionWarning{Field: field, Value: referenceValue(tx, field)})
	}

	if cat, ok := matchCategory(tx.Category, known.Categories); ok {
		tx.Category = cat.Name
		tx.CategoryID = cat.ID
	} else if strings.TrimSpace(tx.Category) != "" {
		tx.CategoryID = ""
		warnings = append(warnings, ResolutionWarning{Field: "category", Value: tx.Category})
	}
	return warnings
}

func matchCategory(label string, categories []domain.Category) (domain.Category, bool) {
	want := NormalizeName(label)
	if want == "" {
		return domain.Category{}, false
	}
	for _, c := range categories {
		if c.ID != "" && NormalizeName(c.Name) == want {
			return c, true
		}
	}
	return domain.Category{}, false
}

func referenceValue(tx *domain.Transaction, field string) string {
	switch field {
	case "accountId":
		return tx.AccountID.Value()
	case "creditCardId":
		return tx.CreditCardID.Value()
	case "destinationAccountId":
		return tx.DestinationAccountID.Value()
	}
	return ""
}
