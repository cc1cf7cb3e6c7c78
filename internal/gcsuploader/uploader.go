package gcsuploader

import (
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"
)

const defaultPrefix = "turns"

// Archiver writes raw inbound chat payloads to a GCS bucket.
// It assumes Application Default Credentials are configured.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewArchiver creates an Archiver with its own storage client.
func NewArchiver(ctx context.Context, bucket string) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewArchiver: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewArchiver: create storage client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket, prefix: defaultPrefix, now: time.Now}, nil
}

// Close closes the storage client.
func (a *Archiver) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// ObjectName builds turns/<user>/<yyyy-mm-dd>/<turn>.json.
func ObjectName(prefix, userID, turnID string, at time.Time) string {
	return path.Join(prefix, userID, at.UTC().Format("2006-01-02"), turnID+".json")
}

// ArchivePayload implements agent.Archiver.
func (a *Archiver) ArchivePayload(ctx context.Context, userID, turnID string, payload []byte) error {
	objectName := ObjectName(a.prefix, userID, turnID, a.now())

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{"user_id": userID, "turn_id": turnID}

	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("ArchivePayload: write gs://%s/%s: %w", a.bucket, objectName, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("ArchivePayload: finalize gs://%s/%s: %w", a.bucket, objectName, err)
	}
	return nil
}
