package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-agent/internal/domain"
	"google.golang.org/api/iterator"
)

const (
	// DefaultDatasetID is used when no dataset is configured.
	DefaultDatasetID     = "finance"
	interpretationsTable = "interpretations"
)

// InterpretationRecorder appends chat turns to the interpretations table.
// It holds a shared BigQuery client.
type InterpretationRecorder struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewInterpretationRecorder creates a recorder with its own BigQuery client.
func NewInterpretationRecorder(ctx context.Context, projectID, datasetID string) (*InterpretationRecorder, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewInterpretationRecorder: creating client: %w", err)
	}
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	return &InterpretationRecorder{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (r *InterpretationRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *InterpretationRecorder) tableRef() string {
	return "`" + r.projectID + "." + r.datasetID + "." + interpretationsTable + "`"
}

// RecordInterpretation implements agent.Recorder using the streaming inserter.
func (r *InterpretationRecorder) RecordInterpretation(ctx context.Context, rec *domain.Interpretation) error {
	table := r.client.DatasetInProject(r.projectID, r.datasetID).Table(interpretationsTable)
	if err := table.Inserter().Put(ctx, NewInterpretationRow(rec)); err != nil {
		return fmt.Errorf("RecordInterpretation: inserting row: %w", err)
	}
	return nil
}

// ListInterpretations returns the most recent turns of a user, newest first.
func (r *InterpretationRecorder) ListInterpretations(ctx context.Context, userID string, limit int) ([]*domain.Interpretation, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.client.Query(`
		SELECT
			turn_id, user_id, message, raw_reply, candidate_json,
			model_name, outcome, transaction_id, error_message, created_ts
		FROM ` + r.tableRef() + `
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListInterpretations: running query: %w", err)
	}

	var result []*domain.Interpretation
	for {
		var row InterpretationRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListInterpretations: reading row: %w", err)
		}
		result = append(result, row.Interpretation())
	}
	return result, nil
}
