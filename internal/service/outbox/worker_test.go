package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func TestWorkerProcessOnceMarksSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-1",
				AggregateType: "order",
				AggregateID:   "order-1",
				EventType:     "order.completed",
				Payload:       []byte(`{"status":"completed"}`),
			},
		},
	}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	require.Equal(t, []string{"msg-1"}, repo.sentIDs)
	require.Empty(t, repo.failedIDs)
	require.Equal(t, 1, publisher.calls())
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{ID: "msg-2", AggregateType: "order", AggregateID: "order-2", EventType: "order.created"},
		},
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("broker unavailable"),
			errors.New("broker unavailable"),
			nil,
		},
	}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Equal(t, []string{"msg-2"}, repo.sentIDs)
	require.Empty(t, repo.failedIDs)
}

func TestWorkerExhaustedRetriesGoToDLQ(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-3",
				AggregateType: "order",
				AggregateID:   "order-3",
				EventType:     "order.cancelled",
				Payload:       []byte(`{"reason":"hold expired"}`),
			},
		},
	}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlq := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)
	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.sentIDs)
	require.Equal(t, []string{"msg-3"}, repo.failedIDs)
	require.Equal(t, 1, dlq.calls())

	var wrapped struct {
		OutboxID     string          `json:"outbox_id"`
		EventType    string          `json:"event_type"`
		Payload      json.RawMessage `json:"payload"`
		PublishError string          `json:"publish_error"`
	}
	require.Len(t, dlq.published, 1)
	require.NoError(t, json.Unmarshal(dlq.published[0].Payload, &wrapped))
	require.Equal(t, "msg-3", wrapped.OutboxID)
	require.Equal(t, "order.cancelled", wrapped.EventType)
	require.JSONEq(t, `{"reason":"hold expired"}`, string(wrapped.Payload))
	require.Contains(t, wrapped.PublishError, "publish failed")
}

func TestWorkerFailureWithoutDLQStillMarksFailed(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{ID: "msg-4", AggregateType: "order", AggregateID: "order-4", EventType: "order.refunded"},
		},
	}
	publisher := &stubPublisher{err: errors.New("publish failed")}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(2))
	worker.ProcessOnce(context.Background())

	require.Equal(t, 2, publisher.calls())
	require.Equal(t, []string{"msg-4"}, repo.failedIDs)
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &stubOutboxRepo{}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithPollInterval(5*time.Millisecond), WithRetryBaseDelay(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
	callCount      int
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		if err == nil {
			s.published = append(s.published, msg)
		}
		return err
	}
	if s.err != nil {
		return s.err
	}

	s.published = append(s.published, msg)
	return nil
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
