package agent

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/shopspring/decimal"
)

// FormatBRL renders an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	intPart, frac, _ := strings.Cut(d.Abs().StringFixed(2), ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return "R$ " + sign + grouped.String() + "," + frac
}

var warningLabels = map[string]string{
	"accountId":            "Conta",
	"creditCardId":         "Cartão",
	"destinationAccountId": "Conta de destino",
	"category":             "Categoria",
}

// Confirmation builds the chat message sent after a transaction is saved.
func Confirmation(tx *domain.Transaction, warnings []ResolutionWarning, message, rawReply string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "✅ Lançamento registrado: %s de %s", tx.Type.Label(), FormatBRL(tx.Amount))
	if tx.Category != "" {
		fmt.Fprintf(&b, " em %s", tx.Category)
	}
	fmt.Fprintf(&b, " (%s", tx.Date.Format("02/01/2006"))
	if !tx.Efetivado {
		b.WriteString(", pendente")
	}
	b.WriteString(").\n")

	if reply := strings.TrimSpace(tx.IAReply); reply != "" {
		b.WriteString(reply + "\n")
	}
	for _, w := range warnings {
		label, ok := warningLabels[w.Field]
		if !ok {
			label = w.Field
		}
		fmt.Fprintf(&b, "⚠️ %s %q não está no seu cadastro; o vínculo ficou pendente.\n", label, w.Value)
	}

	fmt.Fprintf(&b, "\n📝 Mensagem: %s", message)
	if rawReply != "" {
		fmt.Fprintf(&b, "\n🤖 Interpretação: %s", rawReply)
	}
	return b.String()
}
