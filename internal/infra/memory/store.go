package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/google/uuid"
)

// userData is everything the store keeps for one user.
type userData struct {
	accounts     []domain.Account
	creditCards  []domain.CreditCard
	categories   []domain.Category
	transactions []*domain.Transaction
}

// Store is an in-memory implementation of the agent store.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu    sync.RWMutex
	users map[string]*userData
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{users: make(map[string]*userData)}
}

func (s *Store) user(userID string) *userData {
	u, ok := s.users[userID]
	if !ok {
		u = &userData{}
		s.users[userID] = u
	}
	return u
}

// AddAccount registers an account for userID.
func (s *Store) AddAccount(userID string, acc domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.accounts = append(u.accounts, acc)
}

// AddCreditCard registers a credit card for userID.
func (s *Store) AddCreditCard(userID string, card domain.CreditCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.creditCards = append(u.creditCards, card)
}

// AddCategory registers a category for userID.
func (s *Store) AddCategory(userID string, cat domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.categories = append(u.categories, cat)
}

// ListAccounts implements agent.Directory.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return append([]domain.Account(nil), u.accounts...), nil
	}
	return nil, nil
}

// ListCreditCards implements agent.Directory.
func (s *Store) ListCreditCards(ctx context.Context, userID string) ([]domain.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return append([]domain.CreditCard(nil), u.creditCards...), nil
	}
	return nil, nil
}

// ListCategories implements agent.Directory.
func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return append([]domain.Category(nil), u.categories...), nil
	}
	return nil, nil
}

// SaveTransaction implements agent.TransactionWriter. It stores a copy and
// returns a freshly generated ID.
func (s *Store) SaveTransaction(ctx context.Context, userID string, tx *domain.Transaction) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("SaveTransaction: user ID is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	txCopy := *tx
	txCopy.ID = id
	txCopy.UserID = userID

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.transactions = append(u.transactions, &txCopy)
	return id, nil
}

// ListTransactions returns the user's transactions, newest date first.
// A limit of zero or less returns everything.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	var result []*domain.Transaction
	if ok {
		result = make([]*domain.Transaction, 0, len(u.transactions))
		for _, tx := range u.transactions {
			txCopy := *tx
			result = append(result, &txCopy)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}
