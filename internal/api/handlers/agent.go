package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/api/middleware"
	"github.com/dvloznov/finance-agent/internal/telegram"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds inbound chat payloads.
const maxBodyBytes = 1 << 20

// TurnRunner processes one chat turn. *agent.Agent satisfies it.
type TurnRunner interface {
	HandleTurn(ctx context.Context, req agent.Request) *agent.Result
}

// TurnHandler handles direct agent turns.
type TurnHandler struct {
	agent TurnRunner
	log   zerolog.Logger
}

// NewTurnHandler creates a new turn handler.
func NewTurnHandler(runner TurnRunner, log zerolog.Logger) *TurnHandler {
	return &TurnHandler{agent: runner, log: log}
}

type turnRequest struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
	// Message is a plain string, a chat envelope or any JSON value.
	Message json.RawMessage `json:"message"`
}

// HandleTurn handles POST /api/agent/turn
func (h *TurnHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res := h.agent.HandleTurn(r.Context(), agent.Request{
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		Payload: req.Message,
	})

	middleware.WriteJSON(w, StatusCode(res), NewTurnResponse(res))
}

// StatusCode maps a turn outcome to its HTTP status.
func StatusCode(res *agent.Result) int {
	switch res.Status {
	case agent.StatusSuccess:
		return http.StatusOK
	case agent.StatusNeedsInput:
		return http.StatusAccepted
	case agent.StatusFallback:
		return http.StatusUnprocessableEntity
	}

	switch {
	case errors.Is(res.Err, agent.ErrIdentification), errors.Is(res.Err, agent.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(res.Err, agent.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(res.Err, agent.ErrInterpretation):
		return http.StatusBadGateway
	case errors.Is(res.Err, agent.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, agent.ErrIdentification):
		return "identification"
	case errors.Is(err, agent.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, agent.ErrTimeout):
		return "timeout"
	case errors.Is(err, agent.ErrInterpretation):
		return "interpretation"
	case errors.Is(err, agent.ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

// TelegramHandler receives bot webhook updates.
type TelegramHandler struct {
	agent  TurnRunner
	linker *telegram.Linker
	secret string
	log    zerolog.Logger
}

// NewTelegramHandler creates a webhook handler. secret must match the
// secret_token given to setWebhook; empty disables the check.
func NewTelegramHandler(runner TurnRunner, linker *telegram.Linker, secret string, log zerolog.Logger) *TelegramHandler {
	return &TelegramHandler{agent: runner, linker: linker, secret: secret, log: log}
}

// HandleWebhook handles POST /api/telegram/webhook
//
// Telegram redelivers an update until it gets a 2xx, so updates the agent
// cannot use are acknowledged rather than rejected.
func (h *TelegramHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if !telegram.VerifySecret(r, h.secret) {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid secret token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in, err := h.linker.Decode(body)
	switch {
	case errors.Is(err, telegram.ErrNoMessage), errors.Is(err, telegram.ErrUnknownChat):
		h.log.Warn().Err(err).Msg("Ignoring Telegram update")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case err != nil:
		middleware.WriteError(w, http.StatusBadRequest, "Invalid update")
		return
	}

	res := h.agent.HandleTurn(r.Context(), agent.Request{
		UserID:  in.UserID,
		ChatID:  in.ChatID,
		Payload: in.Raw,
	})

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  string(res.Status),
		"turn_id": res.TurnID,
	})
}
