package domain

import "time"

// Interpretation is the audit record of one chat turn: what the user said,
// what the model answered and how the turn ended.
type Interpretation struct {
	TurnID        string
	UserID        string
	Message       string
	RawReply      string
	CandidateJSON string
	ModelName     string
	Outcome       string
	TransactionID string
	Error         string
	CreatedAt     time.Time
}
