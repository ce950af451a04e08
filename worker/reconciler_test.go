package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ray-remotestate/restro-qr/config"
	"github.com/ray-remotestate/restro-qr/models"
)

func TestProcessBatch(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	paid, open, broken := uuid.New(), uuid.New(), uuid.New()

	var gotBefore time.Time
	var gotLimit int
	var polled []uuid.UUID

	w := NewReconciler(config.ReconcilerConfig{Interval: time.Minute, StaleAfter: 5 * time.Minute, BatchSize: 10})
	w.now = func() time.Time { return now }
	w.listStale = func(_ context.Context, before time.Time, limit int) ([]models.Transaction, error) {
		gotBefore, gotLimit = before, limit
		return []models.Transaction{
			{ID: paid, Status: models.PaymentStatusPending},
			{ID: open, Status: models.PaymentStatusVerifying},
			{ID: broken, Status: models.PaymentStatusPending},
		}, nil
	}
	w.poll = func(_ context.Context, txn models.Transaction) (models.Transaction, bool, error) {
		polled = append(polled, txn.ID)
		switch txn.ID {
		case paid:
			txn.Status = models.PaymentStatusCompleted
			return txn, true, nil
		case open:
			return txn, false, nil
		default:
			return txn, false, errors.New("gateway timeout")
		}
	}

	var touched []uuid.UUID
	w.touch = func(_ context.Context, id uuid.UUID) error {
		touched = append(touched, id)
		return nil
	}

	settled := w.ProcessBatch(context.Background())

	assert.Equal(t, 1, settled)
	assert.Equal(t, now.Add(-5*time.Minute), gotBefore)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, []uuid.UUID{paid, open, broken}, polled)
	assert.Equal(t, []uuid.UUID{broken}, touched)
}

func TestFailingTransactionsDoNotStarveTheQueue(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	first, second, fresh := uuid.New(), uuid.New(), uuid.New()

	// open transactions ordered by updated_at, oldest first
	queue := []uuid.UUID{first, second, fresh}
	failing := map[uuid.UUID]bool{first: true, second: true}

	w := NewReconciler(config.ReconcilerConfig{Interval: time.Minute, StaleAfter: time.Minute, BatchSize: 2})
	w.now = func() time.Time { return now }
	w.listStale = func(_ context.Context, _ time.Time, limit int) ([]models.Transaction, error) {
		var txns []models.Transaction
		for _, id := range queue[:min(limit, len(queue))] {
			txns = append(txns, models.Transaction{ID: id, Status: models.PaymentStatusVerifying})
		}
		return txns, nil
	}
	w.poll = func(_ context.Context, txn models.Transaction) (models.Transaction, bool, error) {
		if failing[txn.ID] {
			return txn, false, errors.New("gateway returned 401")
		}
		txn.Status = models.PaymentStatusCompleted
		return txn, true, nil
	}
	w.touch = func(_ context.Context, id uuid.UUID) error {
		for i, queued := range queue {
			if queued == id {
				queue = append(append(queue[:i:i], queue[i+1:]...), id)
				break
			}
		}
		return nil
	}

	assert.Equal(t, 0, w.ProcessBatch(context.Background()))
	assert.Equal(t, fresh, queue[0])
	assert.Equal(t, 1, w.ProcessBatch(context.Background()))
}

func TestProcessBatchListError(t *testing.T) {
	w := NewReconciler(config.ReconcilerConfig{Interval: time.Minute, BatchSize: 10})
	w.listStale = func(context.Context, time.Time, int) ([]models.Transaction, error) {
		return nil, errors.New("db down")
	}
	w.poll = func(context.Context, models.Transaction) (models.Transaction, bool, error) {
		t.Fatal("poll must not run")
		return models.Transaction{}, false, nil
	}

	assert.Equal(t, 0, w.ProcessBatch(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	calls := make(chan struct{}, 8)
	w := NewReconciler(config.ReconcilerConfig{Interval: 5 * time.Millisecond, BatchSize: 1})
	w.listStale = func(context.Context, time.Time, int) ([]models.Transaction, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("reconciler never ticked")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
