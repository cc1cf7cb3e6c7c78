package notionsync

import (
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Transactions database.
const (
	propDescription   = "Description"
	propTransactionID = "Transaction ID"
	propUser          = "User"
	propAmount        = "Amount"
	propType          = "Type"
	propCategory      = "Category"
	propDate          = "Date"
	propEfetivado     = "Efetivado"
	propFixed         = "Fixed"
	propAccount       = "Account"
	propCreditCard    = "Credit Card"
	propDestination   = "Destination Account"
	propNeedsReview   = "Needs Review"
)

func richText(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

// TransactionToNotionProperties converts a committed transaction to Notion properties.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	title := tx.Description
	if title == "" {
		title = tx.Category
	}
	date := notionapi.Date(tx.Date)

	props := notionapi.Properties{
		propDescription: notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: title},
				},
			},
		},
		propTransactionID: richText(tx.ID),
		propUser:          richText(tx.UserID),
		propAmount:        notionapi.NumberProperty{Number: tx.Amount.InexactFloat64()},
		propType:          notionapi.SelectProperty{Select: notionapi.Option{Name: string(tx.Type)}},
		propDate:          notionapi.DateProperty{Date: &notionapi.DateObject{Start: &date}},
		propEfetivado:     notionapi.CheckboxProperty{Checkbox: tx.Efetivado},
		propFixed:         notionapi.CheckboxProperty{Checkbox: tx.IsFixed},
		propNeedsReview:   notionapi.CheckboxProperty{Checkbox: len(tx.UnresolvedFields()) > 0},
	}

	if tx.Category != "" {
		props[propCategory] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Category}}
	}
	if tx.AccountID.IsSet() {
		props[propAccount] = richText(tx.AccountID.Value())
	}
	if tx.CreditCardID.IsSet() {
		props[propCreditCard] = richText(tx.CreditCardID.Value())
	}
	if tx.DestinationAccountID.IsSet() {
		props[propDestination] = richText(tx.DestinationAccountID.Value())
	}

	return props
}

// extractTransactionID extracts the transaction ID from a Notion page's properties.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties[propTransactionID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}
