package agent

import (
	"strconv"
	"strings"
	"sync"
)

var compiledInstructions = sync.OnceValue(func() string {
	return buildInstructions(CandidateFields)
})

// Instructions returns the system prompt shared by every interpretation.
// It is built from CandidateFields on first use and never changes afterwards.
func Instructions() string {
	return compiledInstructions()
}

// buildInstructions renders the field table and the business rules into a
// single instruction block for the model.
func buildInstructions(fields []FieldSpec) string {
	var b strings.Builder

	b.WriteString("You are the assistant of a personal finance app. The user tells you, in free text,\n")
	b.WriteString("about money they received, spent, moved between accounts or plan to spend.\n")
	b.WriteString("Turn every message into exactly one transaction object.\n\n")

	b.WriteString("Output format:\n")
	b.WriteString("- Output ONE raw JSON object and nothing else.\n")
	b.WriteString("- Do NOT wrap the response in code fences, Markdown or any language tag.\n")
	b.WriteString("- Do NOT write any text before or after the object.\n")
	b.WriteString("- Output must begin with \"{\" and end with \"}\".\n\n")

	b.WriteString("The object must have these fields:\n")
	for _, f := range fields {
		b.WriteString("- \"" + f.Name + "\": " + f.TypeLabel())
		if f.Description != "" {
			b.WriteString(" - " + f.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("Rules:\n")
	for i, rule := range instructionRules {
		b.WriteString(strconv.Itoa(i+1) + ". " + rule + "\n")
	}

	return b.String()
}

var instructionRules = []string{
	"If the user does not state a description explicitly, use the category name as \"description\".",
	"Always write \"iaReply\" in Brazilian Portuguese (" + DefaultLocale + "), whatever language the user writes in.",
	"Any comment, question or clarification goes in \"iaReply\". Never write text outside the object.",
	"Set \"iaDoubt\" to true exactly when you need an answer from the user before the transaction can be saved; otherwise set it to false.",
	"Infer \"efetivado\" from the tense of the message: past or completed actions are true, future or planned ones are false, and when unsure use false.",
	"If the message has no explicit date, set \"date\" to null. Never guess today's date.",
	"A \"transfer\" requires a destination account in \"destinationAccountId\". If the user did not say where the money goes, set \"iaDoubt\" to true and ask for the destination account in \"iaReply\".",
	"Use \"credit_card_reversal\" when the user talks about a refund, chargeback or reversal on a credit card.",
	"Set \"isBudget\" to true only when the user explicitly declares a new budget; otherwise false.",
	"Set \"isFixed\" to true only when the user explicitly says the entry is fixed or recurring; otherwise false. Always include \"isFixed\".",
	"Use \"accountId\" for a bank account or wallet and \"creditCardId\" for a credit card, never both unless the type is \"transfer\". Write the names exactly as the user said them.",
	"\"amount\" is always positive; the type carries the direction of the money.",
}
