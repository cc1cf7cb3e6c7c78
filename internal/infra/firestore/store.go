package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/finance-agent/internal/domain"
	"google.golang.org/api/iterator"
)

// Store reads a user's directory and appends transactions to Firestore.
// Every path is scoped under users/{uid}, so one user's records are never
// visible through another user's ID.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Store with a shared Firestore client.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close closes the Firestore client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) userCollection(userID, name string) (*firestore.CollectionRef, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	return s.client.Collection(usersCollection).Doc(userID).Collection(name), nil
}

// SaveTransaction implements agent.TransactionWriter.
func (s *Store) SaveTransaction(ctx context.Context, userID string, tx *domain.Transaction) (string, error) {
	coll, err := s.userCollection(userID, transactionsCollection)
	if err != nil {
		return "", fmt.Errorf("SaveTransaction: %w", err)
	}

	ref := coll.NewDoc()
	if _, err := ref.Create(ctx, toTransactionDoc(userID, tx)); err != nil {
		return "", fmt.Errorf("SaveTransaction: create %s: %w", ref.Path, err)
	}
	return ref.ID, nil
}

// ListTransactions returns the user's transactions ordered by date, newest
// first. A limit of zero or less returns everything.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	coll, err := s.userCollection(userID, transactionsCollection)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	q := coll.OrderBy("date", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var result []*domain.Transaction
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iterating: %w", err)
		}
		var doc TransactionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("ListTransactions: decoding %s: %w", snap.Ref.ID, err)
		}
		result = append(result, fromTransactionDoc(snap.Ref.ID, &doc))
	}
	return result, nil
}

// ListAccounts implements agent.Directory.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	var accounts []domain.Account
	err := s.each(ctx, userID, accountsCollection, func(snap *firestore.DocumentSnapshot) error {
		var doc AccountDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		accounts = append(accounts, domain.Account{ID: snap.Ref.ID, Name: doc.Name})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accounts, nil
}

// ListCreditCards implements agent.Directory.
func (s *Store) ListCreditCards(ctx context.Context, userID string) ([]domain.CreditCard, error) {
	var cards []domain.CreditCard
	err := s.each(ctx, userID, creditCardsCollection, func(snap *firestore.DocumentSnapshot) error {
		var doc CreditCardDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		cards = append(cards, domain.CreditCard{ID: snap.Ref.ID, Name: doc.Name})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListCreditCards: %w", err)
	}
	return cards, nil
}

// ListCategories implements agent.Directory.
func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	var categories []domain.Category
	err := s.each(ctx, userID, categoriesCollection, func(snap *firestore.DocumentSnapshot) error {
		var doc CategoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		categories = append(categories, domain.Category{ID: snap.Ref.ID, Name: doc.Name, Type: doc.Type})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	return categories, nil
}

// each reads a whole per-user collection. Directory collections are small.
func (s *Store) each(ctx context.Context, userID, name string, fn func(*firestore.DocumentSnapshot) error) error {
	coll, err := s.userCollection(userID, name)
	if err != nil {
		return err
	}

	iter := coll.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		if err := fn(snap); err != nil {
			return fmt.Errorf("decoding %s/%s: %w", name, snap.Ref.ID, err)
		}
	}
}
