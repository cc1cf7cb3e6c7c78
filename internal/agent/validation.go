package agent

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/go-playground/validator/v10"
)

// candidateRules carries the semantic checks that run after type coercion.
type candidateRules struct {
	Amount     float64 `json:"amount" validate:"gt=0"`
	Type       string  `json:"type" validate:"required,transaction_type"`
	HasAccount bool    `json:"accountId"`
	HasCard    bool    `json:"creditCardId"`
	Doubt      bool    `json:"iaDoubt"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("transaction_type", func(fl validator.FieldLevel) bool {
		return domain.TransactionType(fl.Field().String()).Valid()
	}); err != nil {
		panic(fmt.Sprintf("agent: register transaction_type: %v", err))
	}
	v.RegisterStructValidation(exclusiveFunding, candidateRules{})
	return v
}

// exclusiveFunding rejects a non-transfer that names both an account and a
// credit card. Clarification turns are never persisted, so they are exempt.
func exclusiveFunding(sl validator.StructLevel) {
	r := sl.Current().Interface().(candidateRules)
	if r.Doubt || domain.TransactionType(r.Type) == domain.TypeTransfer {
		return
	}
	if r.HasAccount && r.HasCard {
		sl.ReportError(r.HasCard, "creditCardId", "HasCard", "exclusive_funding", "accountId")
	}
}

// validateCandidate applies semantic rules to an already type-checked
// candidate. The amount of a clarification turn may still be unknown, so
// positivity is only enforced for turns that can be committed.
func validateCandidate(c *domain.Candidate, verr *ValidationError) {
	rules := candidateRules{
		Amount:     c.Amount.InexactFloat64(),
		Type:       string(c.Type),
		HasAccount: c.AccountID.IsSet(),
		HasCard:    c.CreditCardID.IsSet(),
		Doubt:      c.IADoubt,
	}

	var err error
	if c.IADoubt {
		err = validate.StructExcept(rules, "Amount")
	} else {
		err = validate.Struct(rules)
	}
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		verr.add("", "%v", err)
		return
	}
	for _, fe := range verrs {
		verr.add(fe.Field(), "%s", ruleReason(fe))
	}
}

func ruleReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "required":
		return "missing required field"
	case "transaction_type":
		return fmt.Sprintf("%q is not one of %s", fe.Value(), strings.Join(transactionTypeNames(), ", "))
	case "exclusive_funding":
		return "cannot be set together with accountId unless type is transfer"
	default:
		return "failed " + fe.Tag()
	}
}
