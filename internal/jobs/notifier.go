package jobs

import (
	"context"
	"fmt"
	"time"
)

// Sender delivers a message synchronously. agent.Notifier implementations
// such as the Telegram notifier satisfy it.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// QueuedNotifier implements agent.Notifier by publishing a DeliveryJob.
// Send returns once the job is queued; delivery happens in a worker.
type QueuedNotifier struct {
	publisher  Publisher
	maxRetries int
}

// NewQueuedNotifier creates a notifier that publishes to p.
func NewQueuedNotifier(p Publisher, maxRetries int) *QueuedNotifier {
	return &QueuedNotifier{publisher: p, maxRetries: maxRetries}
}

// Send enqueues text for chatID.
func (n *QueuedNotifier) Send(ctx context.Context, chatID, text string) error {
	job := &DeliveryJob{
		ChatID:     chatID,
		Text:       text,
		MaxRetries: n.maxRetries,
	}
	if err := n.publisher.PublishDelivery(ctx, job); err != nil {
		return fmt.Errorf("QueuedNotifier.Send: %w", err)
	}
	return nil
}

// DeliveryHandler returns a JobHandler that sends each job through s,
// bounding every attempt by timeout.
func DeliveryHandler(s Sender, timeout time.Duration) JobHandler {
	return func(ctx context.Context, job *DeliveryJob) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return s.Send(ctx, job.ChatID, job.Text)
	}
}
