package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/jomei/notionapi"
)

// Mirror copies committed transactions into a Notion database.
type Mirror struct {
	client     NotionService
	databaseID string
}

// NewMirror creates a Mirror writing to databaseID.
func NewMirror(client NotionService, databaseID string) *Mirror {
	return &Mirror{client: client, databaseID: databaseID}
}

// MirrorTransaction implements agent.Mirror.
func (m *Mirror) MirrorTransaction(ctx context.Context, userID string, tx *domain.Transaction) error {
	page, err := m.client.CreatePage(ctx, m.databaseID, TransactionToNotionProperties(tx))
	if err != nil {
		return fmt.Errorf("MirrorTransaction: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("transaction_id", tx.ID).
		Str("page_id", string(page.ID)).
		Msg("Mirrored transaction to Notion")
	return nil
}

// TransactionLister lists a user's stored transactions.
type TransactionLister interface {
	ListTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}

// SyncResult summarizes a backfill run.
type SyncResult struct {
	Created int
	Skipped int
	Failed  int
}

// SyncTransactions backfills a user's transactions into Notion, skipping
// those whose Transaction ID already has a page.
func (m *Mirror) SyncTransactions(ctx context.Context, repo TransactionLister, userID string, dryRun bool) (SyncResult, error) {
	log := logger.FromContext(ctx)
	var res SyncResult

	transactions, err := repo.ListTransactions(ctx, userID, 0)
	if err != nil {
		return res, fmt.Errorf("SyncTransactions: list transactions: %w", err)
	}

	pages, err := queryAllNotionPages(ctx, m.client, m.databaseID)
	if err != nil {
		return res, fmt.Errorf("SyncTransactions: %w", err)
	}
	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := extractTransactionID(page); id != "" {
			existing[id] = true
		}
	}

	log.Info().
		Int("transaction_count", len(transactions)).
		Int("notion_page_count", len(pages)).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	for _, tx := range transactions {
		if existing[tx.ID] {
			res.Skipped++
			continue
		}
		if dryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create new Notion page")
			res.Created++
			continue
		}
		if err := m.MirrorTransaction(ctx, userID, tx); err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Transaction sync completed")
	return res, nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return allPages, nil
}
