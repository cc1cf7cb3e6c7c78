package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/finance-agent/internal/api/middleware"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/dvloznov/finance-agent/internal/jobs/inmemory"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TransactionLister reads a user's stored transactions, newest first.
type TransactionLister interface {
	ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}

// InterpretationLister reads a user's interpretation audit trail.
type InterpretationLister interface {
	ListInterpretations(ctx context.Context, userID string, limit int) ([]*domain.Interpretation, error)
}

// parseLimit reads ?limit=, clamped to (0, maxListLimit].
func parseLimit(r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 {
		return 0, false
	}
	return min(limit, maxListLimit), true
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	repo TransactionLister
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo TransactionLister, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo: repo,
		log:  log,
	}
}

// ListTransactions handles GET /api/users/{uid}/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")
	limit, ok := parseLimit(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	transactions, err := h.repo.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	views := make([]*TransactionView, 0, len(transactions))
	for _, tx := range transactions {
		views = append(views, NewTransactionView(tx))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": views,
		"count":        len(views),
	})
}

// InterpretationsHandler exposes the interpretation audit trail.
type InterpretationsHandler struct {
	repo InterpretationLister
	log  zerolog.Logger
}

// NewInterpretationsHandler creates a new interpretations handler.
func NewInterpretationsHandler(repo InterpretationLister, log zerolog.Logger) *InterpretationsHandler {
	return &InterpretationsHandler{repo: repo, log: log}
}

type interpretationView struct {
	TurnID        string    `json:"turnId"`
	Message       string    `json:"message"`
	RawReply      string    `json:"rawReply,omitempty"`
	CandidateJSON string    `json:"candidateJson,omitempty"`
	ModelName     string    `json:"modelName"`
	Outcome       string    `json:"outcome"`
	TransactionID string    `json:"transactionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ListInterpretations handles GET /api/users/{uid}/interpretations
func (h *InterpretationsHandler) ListInterpretations(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")
	limit, ok := parseLimit(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	records, err := h.repo.ListInterpretations(r.Context(), userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list interpretations")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list interpretations")
		return
	}

	views := make([]interpretationView, 0, len(records))
	for _, rec := range records {
		views = append(views, interpretationView{
			TurnID:        rec.TurnID,
			Message:       rec.Message,
			RawReply:      rec.RawReply,
			CandidateJSON: rec.CandidateJSON,
			ModelName:     rec.ModelName,
			Outcome:       rec.Outcome,
			TransactionID: rec.TransactionID,
			CreatedAt:     rec.CreatedAt,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"interpretations": views,
		"count":           len(views),
	})
}

// JobsHandler handles delivery job endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, inmemory.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		ChatID: query.Get("chat_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
