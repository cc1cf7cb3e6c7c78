package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order when coercing a string into a date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006/01/02",
}

// ParseCandidate validates a decoded model object and converts it into a
// Candidate. Dates without a zone are read in loc. Every failing field is
// reported in a single *ValidationError.
func ParseCandidate(raw any, loc *time.Location) (*domain.Candidate, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Fields: []FieldError{{Reason: fmt.Sprintf("candidate is %T, want object", raw)}}}
	}
	if loc == nil {
		loc = DefaultLocation()
	}

	verr := &ValidationError{}
	c := &domain.Candidate{}

	c.Amount = getNumberField(obj, mustField("amount"), verr)
	c.Category = getStringField(obj, mustField("category"), verr)
	c.Date = getDateField(obj, mustField("date"), loc)
	c.Description = getStringField(obj, mustField("description"), verr)
	c.Type = domain.TransactionType(getStringField(obj, mustField("type"), verr))
	c.Efetivado = derefBool(getBoolField(obj, mustField("efetivado"), verr))

	c.AccountID = domain.Unresolved(strings.TrimSpace(getStringField(obj, mustField("accountId"), verr)))
	c.CreditCardID = domain.Unresolved(strings.TrimSpace(getStringField(obj, mustField("creditCardId"), verr)))
	c.DestinationAccountID = domain.Unresolved(strings.TrimSpace(getStringField(obj, mustField("destinationAccountId"), verr)))

	c.IsBudget = getBoolField(obj, mustField("isBudget"), verr)
	c.IsFixed = derefBool(getBoolField(obj, mustField("isFixed"), verr))
	c.IsRecurring = getBoolField(obj, mustField("isRecurring"), verr)

	c.IAReply = getStringField(obj, mustField("iaReply"), verr)
	c.IADoubt = derefBool(getBoolField(obj, mustField("iaDoubt"), verr))

	if len(verr.Fields) == 0 {
		validateCandidate(c, verr)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return c, nil
}

// present returns the raw value and whether it counts as supplied.
// A required field that is missing or null is recorded in verr.
func present(m map[string]any, f FieldSpec, verr *ValidationError) (any, bool) {
	v, ok := m[f.Name]
	if !ok || v == nil {
		if f.Required() {
			verr.add(f.Name, "missing required field")
		}
		return nil, false
	}
	return v, true
}

func getStringField(m map[string]any, f FieldSpec, verr *ValidationError) string {
	v, ok := present(m, f, verr)
	if !ok {
		return ""
	}
	s, isString := v.(string)
	if !isString {
		verr.add(f.Name, "has type %T, want string", v)
		return ""
	}
	return s
}

func getBoolField(m map[string]any, f FieldSpec, verr *ValidationError) *bool {
	v, ok := present(m, f, verr)
	if !ok {
		return nil
	}
	b, isBool := v.(bool)
	if !isBool {
		verr.add(f.Name, "has type %T, want boolean", v)
		return nil
	}
	return &b
}

func getNumberField(m map[string]any, f FieldSpec, verr *ValidationError) decimal.Decimal {
	v, ok := present(m, f, verr)
	if !ok {
		return decimal.Zero
	}
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			verr.add(f.Name, "invalid number %q", n.String())
			return decimal.Zero
		}
		return d
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			verr.add(f.Name, "invalid number %v", n)
			return decimal.Zero
		}
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case decimal.Decimal:
		return n
	default:
		verr.add(f.Name, "has type %T, want number", v)
		return decimal.Zero
	}
}

// getDateField never fails: anything it cannot read as a date becomes nil.
func getDateField(m map[string]any, f FieldSpec, loc *time.Location) *time.Time {
	v, ok := m[f.Name]
	if !ok || v == nil {
		return nil
	}
	t, ok := coerceDate(v, loc)
	if !ok {
		return nil
	}
	return &t
}

func coerceDate(v any, loc *time.Location) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		if d.IsZero() {
			return time.Time{}, false
		}
		return d, true
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case json.Number:
		if ms, err := d.Int64(); err == nil {
			return unixMillisOrSeconds(ms), true
		}
		if f, err := d.Float64(); err == nil {
			return unixMillisOrSeconds(int64(f)), true
		}
		return time.Time{}, false
	case float64:
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return time.Time{}, false
		}
		return unixMillisOrSeconds(int64(d)), true
	default:
		return time.Time{}, false
	}
}

// unixMillisOrSeconds treats values past year 2286 in seconds as milliseconds.
func unixMillisOrSeconds(v int64) time.Time {
	if v > 1e10 || v < -1e10 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

func derefBool(b *bool) bool {
	return b != nil && *b
}
