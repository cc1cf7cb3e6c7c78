package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Turn failure categories. Only identification, interpretation and
// persistence abort a turn; notification errors are logged.
var (
	ErrIdentification = errors.New("missing or invalid user identifier")
	ErrEmptyMessage   = errors.New("no text message in payload")
	ErrInterpretation = errors.New("interpretation failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrNotification   = errors.New("notification failed")
	ErrTimeout        = errors.New("timed out")

	// ErrEmptyObject is returned by a Generator when the model produced no
	// structured object at all.
	ErrEmptyObject = errors.New("model returned no object")
)

// FieldError is a single validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// ValidationError lists every field of a candidate that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid candidate: " + strings.Join(parts, "; ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// wrapCall tags err with category and, when the call hit its deadline, ErrTimeout.
func wrapCall(category error, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w: %w", category, op, ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s: %w", category, op, err)
}

// UserMessage maps a turn error to the text shown in chat. Technical detail
// never reaches the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIdentification):
		return "Não consegui identificar seu usuário. Faça login novamente e tente de novo."
	case errors.Is(err, ErrEmptyMessage):
		return "Não recebi nenhuma mensagem de texto. Pode escrever o lançamento?"
	case errors.Is(err, ErrPersistence) && errors.Is(err, ErrTimeout):
		return "O armazenamento demorou demais para responder. Nada foi registrado; tente novamente."
	case errors.Is(err, ErrTimeout):
		return "O assistente demorou demais para responder. Tente novamente em instantes."
	case errors.Is(err, ErrInterpretation):
		return "Não consegui interpretar sua mensagem. Tente reformular o lançamento."
	case errors.Is(err, ErrPersistence):
		return "Não consegui salvar a transação. Nada foi registrado; tente novamente."
	default:
		return "Ocorreu um erro inesperado. Tente novamente."
	}
}
