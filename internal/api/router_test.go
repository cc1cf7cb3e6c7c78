package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/infra/memory"
	"github.com/dvloznov/finance-agent/internal/telegram"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	text   string
	object any
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return g.text, nil
}

func (g *scriptedGenerator) GenerateObject(ctx context.Context, system, prompt string, fields []agent.FieldSpec) (any, error) {
	if g.object == nil {
		return nil, agent.ErrEmptyObject
	}
	return g.object, nil
}

func (g *scriptedGenerator) ModelName() string { return "scripted" }

type chatLog struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (c *chatLog) Send(ctx context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		c.sent = make(map[string][]string)
	}
	c.sent[chatID] = append(c.sent[chatID], text)
	return nil
}

func newServer(t *testing.T, gen agent.Generator, token string) (http.Handler, *memory.Store, *chatLog) {
	t.Helper()
	store := memory.NewStore()
	store.AddAccount("user-1", domain.Account{ID: "acc-nu", Name: "Nubank"})
	store.AddCategory("user-1", domain.Category{ID: "cat-transp", Name: "Transporte", Type: "expense"})
	chats := &chatLog{}

	a := agent.New(gen, store, chats, agent.Config{Location: time.UTC},
		agent.WithClock(func() time.Time { return time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC) }))

	h := NewHandler(Deps{
		Agent:         a,
		Transactions:  store,
		Linker:        telegram.NewLinker(map[string]string{"777": "user-1"}),
		WebhookSecret: "hook",
		APIToken:      token,
	}, zerolog.Nop())
	return h, store, chats
}

func expenseObject() map[string]any {
	return map[string]any{
		"amount":      json.Number("50"),
		"category":    "transporte",
		"date":        nil,
		"description": "Uber",
		"type":        "expense",
		"efetivado":   true,
		"accountId":   "nubank",
		"isFixed":     false,
		"iaReply":     "Anotei sua corrida.",
		"iaDoubt":     false,
	}
}

func TestTurnCommitsAndLists(t *testing.T) {
	h, store, chats := newServer(t, &scriptedGenerator{text: "Despesa de R$ 50 com Uber.", object: expenseObject()}, "")

	body := `{"userId":"user-1","chatId":"42","message":"gastei 50 reais com uber hoje no nubank"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/turn", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	txs, err := store.ListTransactions(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "acc-nu", txs[0].AccountID.Value())
	assert.Equal(t, "cat-transp", txs[0].CategoryID)
	assert.Len(t, chats.sent["42"], 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/user-1/transactions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accountId":"acc-nu"`)
	assert.Contains(t, rec.Body.String(), `"date":"2026-10-18"`)
}

func TestTurnDoubtReturnsAccepted(t *testing.T) {
	obj := expenseObject()
	obj["iaDoubt"] = true
	obj["iaReply"] = "Qual foi o valor?"
	obj["amount"] = json.Number("0")
	h, store, _ := newServer(t, &scriptedGenerator{text: "Não entendi o valor.", object: obj}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/turn",
		bytes.NewBufferString(`{"userId":"user-1","message":"paguei o uber"}`)))

	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"needs_input"`)
	txs, err := store.ListTransactions(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTurnFallbackAndMissingUser(t *testing.T) {
	h, _, _ := newServer(t, &scriptedGenerator{text: "Olá! Como posso ajudar?"}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/turn",
		bytes.NewBufferString(`{"userId":"user-1","message":"oi"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/turn",
		bytes.NewBufferString(`{"message":"gastei 50"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnWithoutTextIsRejected(t *testing.T) {
	gen := &scriptedGenerator{text: "ok", object: expenseObject()}
	h, store, _ := newServer(t, gen, "")

	for _, body := range []string{
		`{"userId":"user-1","message":null}`,
		`{"userId":"user-1","message":123}`,
		`{"userId":"user-1","message":true}`,
		`{"userId":"user-1"}`,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/turn", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), `"error":"empty_message"`, body)
	}

	txs, err := store.ListTransactions(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWebhookRoute(t *testing.T) {
	h, store, chats := newServer(t, &scriptedGenerator{text: "ok", object: expenseObject()}, "api-token")

	update := `{"update_id":5,"message":{"message_id":9,"date":1,"chat":{"id":777,"type":"private"},"text":"gastei 50 no uber"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/telegram/webhook", bytes.NewBufferString(update))
	req.Header.Set(telegram.SecretHeader, "hook")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	txs, err := store.ListTransactions(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Len(t, chats.sent["777"], 1)
}

func TestAuthAndOptionalRoutes(t *testing.T) {
	h, _, _ := newServer(t, &scriptedGenerator{}, "api-token")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/user-1/transactions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/users/user-1/transactions", nil)
	req.Header.Set("Authorization", "Bearer api-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Jobs and interpretations are unregistered without their stores.
	req = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer api-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
