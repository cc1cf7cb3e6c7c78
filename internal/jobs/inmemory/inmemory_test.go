package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietCtx() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func noBackoff(int) time.Duration { return 0 }

func TestStore_SaveGetList(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	require.Error(t, s.SaveJob(ctx, &jobs.DeliveryJob{}))

	for i, chat := range []string{"1", "2", "1"} {
		require.NoError(t, s.SaveJob(ctx, &jobs.DeliveryJob{
			JobID:     string(rune('a' + i)),
			ChatID:    chat,
			Status:    jobs.JobStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	job, err := s.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", job.ChatID)

	_, err = s.GetJob(ctx, "zzz")
	assert.ErrorIs(t, err, ErrJobNotFound)

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].JobID, "newest first")

	chat1, err := s.ListJobs(ctx, jobs.JobFilter{ChatID: "1"})
	require.NoError(t, err)
	assert.Len(t, chat1, 2)

	page, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].JobID)

	empty, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	job := &jobs.DeliveryJob{JobID: "a", Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusFailed
	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)
}

func TestQueue_DeliversJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store, WithWorkers(2), WithBackoff(noBackoff))
	ctx := quietCtx()

	var delivered atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.DeliveryJob) error {
		delivered.Add(1)
		return nil
	}))
	defer q.Close()

	job := &jobs.DeliveryJob{ChatID: "1", Text: "oi"}
	require.NoError(t, q.PublishDelivery(ctx, job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.DefaultMaxRetries, job.MaxRetries)

	require.Eventually(t, func() bool {
		got, err := store.GetJob(ctx, job.JobID)
		return err == nil && got.Status == jobs.JobStatusCompleted
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load())
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1), WithBackoff(noBackoff))
	ctx := quietCtx()

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.DeliveryJob) error {
		if attempts.Add(1) < 3 {
			return errors.New("temporarily unavailable")
		}
		return nil
	}))
	defer q.Close()

	require.NoError(t, q.PublishDelivery(ctx, &jobs.DeliveryJob{JobID: "j1", ChatID: "1", Text: "oi"}))

	require.Eventually(t, func() bool {
		got, err := store.GetJob(ctx, "j1")
		return err == nil && got.Status == jobs.JobStatusCompleted
	}, time.Second, 5*time.Millisecond)

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Empty(t, got.Error)
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1), WithBackoff(noBackoff))
	ctx := quietCtx()

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.DeliveryJob) error {
		attempts.Add(1)
		return errors.New("bot was blocked")
	}))
	defer q.Close()

	require.NoError(t, q.PublishDelivery(ctx, &jobs.DeliveryJob{JobID: "j1", ChatID: "1", Text: "oi", MaxRetries: 2}))

	require.Eventually(t, func() bool {
		got, err := store.GetJob(ctx, "j1")
		return err == nil && got.Status == jobs.JobStatusFailed
	}, time.Second, 5*time.Millisecond)

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "bot was blocked", got.Error)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err := q.PublishDelivery(context.Background(), &jobs.DeliveryJob{ChatID: "1", Text: "oi"})
	assert.Error(t, err)
	assert.Error(t, q.Start(context.Background(), func(context.Context, *jobs.DeliveryJob) error { return nil }))
}

func TestQueuedNotifier_EndToEnd(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store, WithWorkers(1), WithBackoff(noBackoff))
	ctx := quietCtx()

	sender := &recordingSender{}
	require.NoError(t, q.Start(ctx, jobs.DeliveryHandler(sender, time.Second)))
	defer q.Close()

	n := jobs.NewQueuedNotifier(q, 1)
	require.NoError(t, n.Send(ctx, "42", "✅ Lançamento registrado"))

	require.Eventually(t, func() bool { return sender.count.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "42", sender.lastChat.Load())

	list, err := store.ListJobs(ctx, jobs.JobFilter{ChatID: "42"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].MaxRetries)
}

type recordingSender struct {
	count    atomic.Int32
	lastChat atomic.Value
}

func (r *recordingSender) Send(ctx context.Context, chatID, text string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a bounded context")
	}
	r.lastChat.Store(chatID)
	r.count.Add(1)
	return nil
}
