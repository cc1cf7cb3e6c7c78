// Package api assembles the HTTP surface of the agent.
package api

import (
	"net/http"

	"github.com/dvloznov/finance-agent/internal/api/handlers"
	"github.com/dvloznov/finance-agent/internal/api/middleware"
	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/dvloznov/finance-agent/internal/telegram"
	"github.com/rs/zerolog"
)

// Paths that skip bearer authentication. The webhook has its own secret.
const (
	healthPath  = "/health"
	webhookPath = "/api/telegram/webhook"
)

// Deps are the collaborators behind the routes. Optional ones left nil
// leave their routes unregistered.
type Deps struct {
	Agent        handlers.TurnRunner
	Transactions handlers.TransactionLister

	Interpretations handlers.InterpretationLister
	Jobs            jobs.JobStore

	Linker        *telegram.Linker
	WebhookSecret string

	APIToken       string
	AllowedOrigins string
}

// NewHandler builds the routed, middleware-wrapped HTTP handler.
func NewHandler(deps Deps, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	turns := handlers.NewTurnHandler(deps.Agent, log)
	mux.HandleFunc("POST /api/agent/turn", turns.HandleTurn)

	if deps.Linker != nil {
		tg := handlers.NewTelegramHandler(deps.Agent, deps.Linker, deps.WebhookSecret, log)
		mux.HandleFunc("POST "+webhookPath, tg.HandleWebhook)
	}

	if deps.Transactions != nil {
		txs := handlers.NewTransactionsHandler(deps.Transactions, log)
		mux.HandleFunc("GET /api/users/{uid}/transactions", txs.ListTransactions)
	}

	if deps.Interpretations != nil {
		audit := handlers.NewInterpretationsHandler(deps.Interpretations, log)
		mux.HandleFunc("GET /api/users/{uid}/interpretations", audit.ListInterpretations)
	}

	if deps.Jobs != nil {
		jh := handlers.NewJobsHandler(deps.Jobs, log)
		mux.HandleFunc("GET /api/jobs", jh.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", jh.GetJob)
	}

	mux.HandleFunc("GET "+healthPath, handlers.Health)

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(log)(
				middleware.CORS(deps.AllowedOrigins)(
					middleware.Auth(deps.APIToken, healthPath, webhookPath)(mux),
				),
			),
		),
	)
}
