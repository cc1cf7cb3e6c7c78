package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-agent/internal/domain"
)

// InterpretationRow is one chat turn in the interpretations audit table.
type InterpretationRow struct {
	TurnID  string `bigquery:"turn_id"` // REQUIRED
	UserID  string `bigquery:"user_id"` // REQUIRED
	Message string `bigquery:"message"` // REQUIRED

	RawReply      bigquery.NullString `bigquery:"raw_reply"`      // NULLABLE
	CandidateJSON bigquery.NullJSON   `bigquery:"candidate_json"` // NULLABLE (JSON)

	ModelName     string              `bigquery:"model_name"`     // REQUIRED
	Outcome       string              `bigquery:"outcome"`        // REQUIRED: success | needs_input | fallback | failed
	TransactionID bigquery.NullString `bigquery:"transaction_id"` // NULLABLE
	ErrorMessage  bigquery.NullString `bigquery:"error_message"`  // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// NewInterpretationRow converts an audit record into its table row.
func NewInterpretationRow(rec *domain.Interpretation) *InterpretationRow {
	return &InterpretationRow{
		TurnID:        rec.TurnID,
		UserID:        rec.UserID,
		Message:       rec.Message,
		RawReply:      nullString(rec.RawReply),
		CandidateJSON: bigquery.NullJSON{JSONVal: rec.CandidateJSON, Valid: rec.CandidateJSON != ""},
		ModelName:     rec.ModelName,
		Outcome:       rec.Outcome,
		TransactionID: nullString(rec.TransactionID),
		ErrorMessage:  nullString(rec.Error),
		CreatedTS:     rec.CreatedAt,
	}
}

// Interpretation converts a row back into an audit record.
func (r *InterpretationRow) Interpretation() *domain.Interpretation {
	return &domain.Interpretation{
		TurnID:        r.TurnID,
		UserID:        r.UserID,
		Message:       r.Message,
		RawReply:      r.RawReply.StringVal,
		CandidateJSON: r.CandidateJSON.JSONVal,
		ModelName:     r.ModelName,
		Outcome:       r.Outcome,
		TransactionID: r.TransactionID.StringVal,
		Error:         r.ErrorMessage.StringVal,
		CreatedAt:     r.CreatedTS,
	}
}
