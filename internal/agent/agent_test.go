package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	text      string
	textErr   error
	object    any
	objectErr error
	delay     time.Duration

	textCalls   atomic.Int32
	objectCalls atomic.Int32

	mu      sync.Mutex
	systems []string
	prompts []string
}

func (f *fakeGenerator) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGenerator) seen(system, prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeGenerator) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	f.textCalls.Add(1)
	f.seen(system, prompt)
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return f.text, f.textErr
}

func (f *fakeGenerator) GenerateObject(ctx context.Context, system, prompt string, fields []FieldSpec) (any, error) {
	f.objectCalls.Add(1)
	f.seen(system, prompt)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.object, f.objectErr
}

func (f *fakeGenerator) ModelName() string { return "fake-model" }

type fakeStore struct {
	mu         sync.Mutex
	accounts   []domain.Account
	cards      []domain.CreditCard
	categories []domain.Category
	saved      map[string][]*domain.Transaction
	saveErr    error
	listErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   []domain.Account{{ID: "acc-main", Name: "Banco Principal"}},
		categories: []domain.Category{{ID: "cat-transport", Name: "Transporte", Type: "expense"}},
		saved:      map[string][]*domain.Transaction{},
	}
}

func (s *fakeStore) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.accounts, s.listErr
}

func (s *fakeStore) ListCreditCards(ctx context.Context, userID string) ([]domain.CreditCard, error) {
	return s.cards, s.listErr
}

func (s *fakeStore) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return s.categories, s.listErr
}

func (s *fakeStore) SaveTransaction(ctx context.Context, userID string, tx *domain.Transaction) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "tx-" + string(rune('a'+len(s.saved[userID])))
	s.saved[userID] = append(s.saved[userID], tx)
	return id, nil
}

func (s *fakeStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved[userID])
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, chatID, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []*domain.Interpretation
}

func (r *fakeRecorder) RecordInterpretation(ctx context.Context, rec *domain.Interpretation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

var testNow = time.Date(2026, 10, 18, 15, 4, 5, 0, time.UTC)

func newTestAgent(gen Generator, store Store, notifier Notifier, opts ...Option) *Agent {
	cfg := Config{
		Location:            testLoc,
		DefaultChatID:       "default-chat",
		GenerationTimeout:   time.Second,
		PersistenceTimeout:  time.Second,
		NotificationTimeout: time.Second,
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(gen, store, notifier, cfg, opts...)
}

func uberObject() map[string]any {
	return map[string]any{
		"amount":      json.Number("50"),
		"category":    "Transporte",
		"date":        nil,
		"description": "Uber",
		"type":        "expense",
		"efetivado":   true,
		"isFixed":     false,
		"iaReply":     "Anotei sua corrida de Uber.",
		"iaDoubt":     false,
	}
}

func TestHandleTurn_ScenarioA_ExpenseToday(t *testing.T) {
	gen := &fakeGenerator{text: "Despesa de 50 reais com Uber hoje.", object: uberObject()}
	store := newFakeStore()
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, "chat-1", mock.AnythingOfType("string")).Return(nil).Once()

	msg := "gastei 50 reais com uber hoje"
	res := newTestAgent(gen, store, notifier).HandleTurn(context.Background(), Request{UserID: "user-1", ChatID: "chat-1", Payload: msg})

	require.Equal(t, StatusSuccess, res.Status, "err: %v", res.Err)
	require.NotNil(t, res.Transaction)
	tx := res.Transaction
	assert.Equal(t, domain.TypeExpense, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(50)))
	assert.True(t, tx.Efetivado)
	assert.False(t, tx.IsFixed)
	assert.True(t, tx.Date.Equal(testNow))
	assert.Equal(t, testLoc, tx.Date.Location())
	assert.Equal(t, "cat-transport", tx.CategoryID)
	assert.Equal(t, "tx-a", tx.ID)
	assert.Equal(t, "user-1", tx.UserID)
	assert.Equal(t, 1, store.count("user-1"))

	assert.Contains(t, res.Reply, "Despesa de R$ 50,00 em Transporte")
	assert.Contains(t, res.Reply, msg)
	assert.Contains(t, res.Reply, "Despesa de 50 reais com Uber hoje.")
	assert.NoError(t, res.NotifyErr)
	notifier.AssertExpectations(t)

	assert.EqualValues(t, 1, gen.textCalls.Load())
	assert.EqualValues(t, 1, gen.objectCalls.Load())
	for i := range gen.systems {
		assert.Equal(t, Instructions(), gen.systems[i])
		assert.Equal(t, msg, gen.prompts[i])
	}
}

func TestHandleTurn_ScenarioB_TransferNeedsDestination(t *testing.T) {
	obj := uberObject()
	obj["amount"] = json.Number("200")
	obj["type"] = "transfer"
	obj["category"] = "Transferência"
	obj["efetivado"] = false
	obj["iaDoubt"] = true
	obj["iaReply"] = "Para qual conta você quer transferir os 200 reais?"
	gen := &fakeGenerator{text: "Transferência de 200 sem destino.", object: obj}
	store := newFakeStore()
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, "chat-1", "Para qual conta você quer transferir os 200 reais?").Return(nil).Once()

	res := newTestAgent(gen, store, notifier).HandleTurn(context.Background(), Request{
		UserID: "user-1", ChatID: "chat-1", Payload: "transferir 200 para minha poupança",
	})

	assert.Equal(t, StatusNeedsInput, res.Status)
	assert.Equal(t, "Para qual conta você quer transferir os 200 reais?", res.Reply)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, 0, store.count("user-1"))
	notifier.AssertExpectations(t)
}

func TestHandleTurn_TransferGuardWithoutDoubt(t *testing.T) {
	obj := uberObject()
	obj["type"] = "transfer"
	gen := &fakeGenerator{text: "ok", object: obj}
	store := newFakeStore()

	res := newTestAgent(gen, store, nil).HandleTurn(context.Background(), Request{UserID: "user-1", Payload: "transferir 200"})

	assert.Equal(t, StatusNeedsInput, res.Status)
	assert.Equal(t, transferDestinationRequest, res.Reply)
	assert.Equal(t, 0, store.count("user-1"))
}

func TestHandleTurn_ScenarioC_UnknownAccount(t *testing.T) {
	obj := uberObject()
	obj["accountId"] = "banco xpto"
	gen := &fakeGenerator{text: "Despesa na conta banco xpto.", object: obj}
	store := newFakeStore()
	buf := &bytes.Buffer{}

	res := newTestAgent(gen, store, nil, WithLogger(logger.NewWithWriter(buf))).HandleTurn(context.Background(), Request{
		UserID: "user-1", Payload: "gastei 50 no banco xpto",
	})

	require.Equal(t, StatusSuccess, res.Status, "err: %v", res.Err)
	assert.True(t, res.Transaction.AccountID.IsUnresolved())
	assert.Equal(t, "banco xpto", res.Transaction.AccountID.Value())
	assert.Contains(t, res.Warnings, ResolutionWarning{Field: "accountId", Value: "banco xpto"})
	assert.Equal(t, 1, store.count("user-1"))
	assert.Contains(t, buf.String(), "reference left unresolved")
	assert.Contains(t, buf.String(), "banco xpto")
}

func TestHandleTurn_ScenarioD_NotificationFailure(t *testing.T) {
	gen := &fakeGenerator{text: "Despesa com Uber.", object: uberObject()}
	store := newFakeStore()
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, "chat-1", mock.AnythingOfType("string")).Return(errors.New("telegram unavailable")).Once()

	res := newTestAgent(gen, store, notifier).HandleTurn(context.Background(), Request{
		UserID: "user-1", ChatID: "chat-1", Payload: "gastei 50 reais com uber hoje",
	})

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Reply, "Lançamento registrado")
	assert.ErrorIs(t, res.NotifyErr, ErrNotification)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, store.count("user-1"))
	notifier.AssertExpectations(t)
}

func TestHandleTurn_DoubtNeverPersists(t *testing.T) {
	for _, typ := range domain.TransactionTypes() {
		t.Run(string(typ), func(t *testing.T) {
			obj := uberObject()
			obj["type"] = string(typ)
			obj["iaDoubt"] = true
			obj["accountId"] = "Banco Principal"
			obj["destinationAccountId"] = "Banco Principal"
			store := newFakeStore()

			res := newTestAgent(&fakeGenerator{text: "?", object: obj}, store, nil).HandleTurn(context.Background(), Request{UserID: "u", Payload: "x"})

			assert.Equal(t, StatusNeedsInput, res.Status)
			assert.Equal(t, 0, store.count("u"))
		})
	}
}

func TestHandleTurn_MissingIsFixedIsInterpretationFailure(t *testing.T) {
	obj := uberObject()
	delete(obj, "isFixed")
	store := newFakeStore()
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, "chat-1", UserMessage(ErrInterpretation)).Return(nil).Once()

	res := newTestAgent(&fakeGenerator{text: "Despesa", object: obj}, store, notifier).HandleTurn(context.Background(), Request{
		UserID: "user-1", ChatID: "chat-1", Payload: "gastei 50 reais com uber hoje",
	})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrInterpretation)
	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	assert.True(t, verr.Has("isFixed"))
	assert.Nil(t, res.Transaction)
	assert.Equal(t, 0, store.count("user-1"))
	notifier.AssertExpectations(t)
}

func TestHandleTurn_MissingUser(t *testing.T) {
	gen := &fakeGenerator{text: "x", object: uberObject()}
	notifier := &mockNotifier{}

	res := newTestAgent(gen, newFakeStore(), notifier).HandleTurn(context.Background(), Request{UserID: "  ", ChatID: "chat-1", Payload: "gastei 50"})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrIdentification)
	assert.Equal(t, UserMessage(ErrIdentification), res.Reply)
	assert.Zero(t, gen.textCalls.Load())
	assert.Zero(t, gen.objectCalls.Load())
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleTurn_EmptyMessage(t *testing.T) {
	gen := &fakeGenerator{}
	res := newTestAgent(gen, newFakeStore(), nil).HandleTurn(context.Background(), Request{UserID: "u", Payload: map[string]any{"chat": 1}})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrEmptyMessage)
	assert.Zero(t, gen.textCalls.Load())
}

func TestHandleTurn_FallbackToFreeText(t *testing.T) {
	gen := &fakeGenerator{text: "Não entendi se foi receita ou despesa.", objectErr: ErrEmptyObject}
	store := newFakeStore()

	res := newTestAgent(gen, store, nil).HandleTurn(context.Background(), Request{UserID: "u", Payload: "50 uber"})

	assert.Equal(t, StatusFallback, res.Status)
	assert.Equal(t, "Não entendi se foi receita ou despesa.", res.Reply)
	assert.Equal(t, 0, store.count("u"))
}

func TestHandleTurn_NothingUsable(t *testing.T) {
	gen := &fakeGenerator{text: "  ", objectErr: ErrEmptyObject}
	res := newTestAgent(gen, newFakeStore(), nil).HandleTurn(context.Background(), Request{UserID: "u", Payload: "50 uber"})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrInterpretation)
}

func TestHandleTurn_GeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{textErr: errors.New("503 from model"), object: uberObject()}
	store := newFakeStore()

	res := newTestAgent(gen, store, nil).HandleTurn(context.Background(), Request{UserID: "u", Payload: "gastei 50"})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrInterpretation)
	assert.NotErrorIs(t, res.Err, ErrTimeout)
	assert.Equal(t, 0, store.count("u"))
}

func TestHandleTurn_GenerationTimeout(t *testing.T) {
	gen := &fakeGenerator{text: "x", object: uberObject(), delay: 500 * time.Millisecond}
	store := newFakeStore()
	a := New(gen, store, nil, Config{Location: testLoc, GenerationTimeout: 20 * time.Millisecond})

	start := time.Now()
	res := a.HandleTurn(context.Background(), Request{UserID: "u", Payload: "gastei 50"})

	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrInterpretation)
	assert.ErrorIs(t, res.Err, ErrTimeout)
	assert.Equal(t, UserMessage(ErrTimeout), res.Reply)
	assert.Equal(t, 0, store.count("u"))
}

type failingRecorder struct{}

func (failingRecorder) RecordInterpretation(ctx context.Context, rec *domain.Interpretation) error {
	return errors.New("bigquery: quota exceeded")
}

func TestHandleTurn_LogsThroughTurnLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, "chat-1", mock.AnythingOfType("string")).Return(errors.New("telegram down")).Once()

	res := newTestAgent(&fakeGenerator{text: "x", object: uberObject()}, newFakeStore(), notifier,
		WithLogger(logger.NewWithWriter(buf)), WithRecorder(failingRecorder{}),
	).HandleTurn(context.Background(), Request{UserID: "user-1", ChatID: "chat-1", Payload: "gastei 50"})

	require.Equal(t, StatusSuccess, res.Status, "err: %v", res.Err)
	out := buf.String()
	for _, msg := range []string{"turn routed", "transaction saved", "notification failed", "failed to record interpretation"} {
		assert.Contains(t, out, msg)
	}
	assert.Contains(t, out, res.TurnID)
	notifier.AssertExpectations(t)
}

func TestHandleTurn_PersistenceFailureSkipsNotification(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("firestore unavailable")
	notifier := &mockNotifier{}

	res := newTestAgent(&fakeGenerator{text: "x", object: uberObject()}, store, notifier).HandleTurn(context.Background(), Request{
		UserID: "user-1", ChatID: "chat-1", Payload: "gastei 50",
	})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrPersistence)
	assert.Equal(t, UserMessage(ErrPersistence), res.Reply)
	assert.Nil(t, res.Transaction)
	assert.NoError(t, res.NotifyErr)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

// slowStore blocks writes until the context ends.
type slowStore struct {
	*fakeStore
}

func (s slowStore) SaveTransaction(ctx context.Context, userID string, tx *domain.Transaction) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestHandleTurn_PersistenceTimeout(t *testing.T) {
	store := slowStore{newFakeStore()}
	a := New(&fakeGenerator{text: "x", object: uberObject()}, store, nil, Config{
		Location:           testLoc,
		GenerationTimeout:  time.Second,
		PersistenceTimeout: 20 * time.Millisecond,
	})

	res := a.HandleTurn(context.Background(), Request{UserID: "u", Payload: "gastei 50"})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrPersistence)
	assert.ErrorIs(t, res.Err, ErrTimeout)
	assert.Equal(t, UserMessage(res.Err), res.Reply)
	assert.Contains(t, res.Reply, "armazenamento")
	assert.NotEqual(t, UserMessage(ErrTimeout), res.Reply)
}

func TestHandleTurn_DirectoryFailureAbortsBeforeWrite(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("permission denied")

	res := newTestAgent(&fakeGenerator{text: "x", object: uberObject()}, store, nil).HandleTurn(context.Background(), Request{UserID: "u", Payload: "gastei 50"})

	assert.ErrorIs(t, res.Err, ErrPersistence)
	assert.Equal(t, 0, store.count("u"))
}

func TestHandleTurn_DefaultChat(t *testing.T) {
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, "default-chat", mock.AnythingOfType("string")).Return(nil).Once()

	res := newTestAgent(&fakeGenerator{text: "x", object: uberObject()}, newFakeStore(), notifier).HandleTurn(context.Background(), Request{
		UserID: "user-1", Payload: "gastei 50",
	})

	assert.Equal(t, StatusSuccess, res.Status)
	notifier.AssertExpectations(t)
}

func TestHandleTurn_RecordsInterpretation(t *testing.T) {
	rec := &fakeRecorder{}
	res := newTestAgent(&fakeGenerator{text: "raw reply", object: uberObject()}, newFakeStore(), nil, WithRecorder(rec)).HandleTurn(context.Background(), Request{
		UserID: "user-1", Payload: "gastei 50 reais com uber hoje",
	})

	require.Len(t, rec.records, 1)
	got := rec.records[0]
	assert.Equal(t, res.TurnID, got.TurnID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "gastei 50 reais com uber hoje", got.Message)
	assert.Equal(t, "raw reply", got.RawReply)
	assert.Equal(t, "fake-model", got.ModelName)
	assert.Equal(t, "success", got.Outcome)
	assert.Equal(t, res.Transaction.ID, got.TransactionID)
	assert.Contains(t, got.CandidateJSON, `"isFixed":false`)
	assert.Empty(t, got.Error)
}

type recordingArchiver struct {
	userID, turnID string
	payload        []byte
}

func (a *recordingArchiver) ArchivePayload(ctx context.Context, userID, turnID string, payload []byte) error {
	a.userID, a.turnID, a.payload = userID, turnID, payload
	return errors.New("bucket missing")
}

func TestHandleTurn_ArchiveFailureIsNotFatal(t *testing.T) {
	ar := &recordingArchiver{}
	res := newTestAgent(&fakeGenerator{text: "x", object: uberObject()}, newFakeStore(), nil, WithArchiver(ar)).HandleTurn(context.Background(), Request{
		UserID: "user-1", Payload: []byte(`{"message":{"text":"gastei 50"}}`),
	})

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "user-1", ar.userID)
	assert.Equal(t, res.TurnID, ar.turnID)
	assert.Contains(t, string(ar.payload), `"payload":{"message":{"text":"gastei 50"}}`)
	assert.Contains(t, string(ar.payload), `"message":"gastei 50"`)
}

func TestArchivedTurn_Replay(t *testing.T) {
	ar := &recordingArchiver{}
	a := newTestAgent(&fakeGenerator{text: "x", object: uberObject()}, newFakeStore(), nil, WithArchiver(ar))
	first := a.HandleTurn(context.Background(), Request{UserID: "user-1", ChatID: "chat-9", Payload: "gastei 50 reais com uber hoje"})
	require.Equal(t, StatusSuccess, first.Status)

	archived, err := DecodeArchivedTurn(ar.payload)
	require.NoError(t, err)
	assert.Equal(t, first.TurnID, archived.TurnID)
	assert.Equal(t, "gastei 50 reais com uber hoje", archived.Message)

	req := archived.Request()
	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, "chat-9", req.ChatID)
	msg, err := ExtractMessage(req.Payload)
	require.NoError(t, err)
	assert.Equal(t, "gastei 50 reais com uber hoje", msg)

	_, err = DecodeArchivedTurn([]byte(`{"turn_id":"t"}`))
	assert.ErrorIs(t, err, ErrIdentification)
}

func TestHandleTurn_ConcurrentTurns(t *testing.T) {
	store := newFakeStore()
	a := newTestAgent(&fakeGenerator{text: "x", object: uberObject()}, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := a.HandleTurn(context.Background(), Request{UserID: "user-1", Payload: "gastei 50"})
			assert.Equal(t, StatusSuccess, res.Status)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, store.count("user-1"))
}
