package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/config"
	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/service"
)

// Reconciler settles payments whose webhook never arrived by polling the
// gateway for transactions that have been open for too long.
type Reconciler struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int

	listStale func(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error)
	poll      func(ctx context.Context, txn models.Transaction) (models.Transaction, bool, error)
	touch     func(ctx context.Context, id uuid.UUID) error
	now       func() time.Time
}

func NewReconciler(cfg config.ReconcilerConfig) *Reconciler {
	return &Reconciler{
		Interval:   cfg.Interval,
		StaleAfter: cfg.StaleAfter,
		BatchSize:  cfg.BatchSize,
		listStale:  dbhelper.ListStaleTransactions,
		poll:       service.PollTransaction,
		touch:      touchTransaction,
		now:        time.Now,
	}
}

// Run processes a batch every Interval until ctx is cancelled.
func (w *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.Interval).Info("payment reconciler started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("payment reconciler stopped")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch polls one batch of stale transactions and returns how many
// of them were settled.
func (w *Reconciler) ProcessBatch(ctx context.Context) int {
	txns, err := w.listStale(ctx, w.now().Add(-w.StaleAfter), w.BatchSize)
	if err != nil {
		logrus.WithError(err).Error("failed to list stale transactions")
		return 0
	}
	if len(txns) == 0 {
		return 0
	}

	settled := 0
	for _, txn := range txns {
		if ctx.Err() != nil {
			break
		}
		logger := logrus.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"status":         txn.Status,
		})
		updated, applied, err := w.poll(ctx, txn)
		if err != nil {
			logger.WithError(err).Warn("failed to reconcile transaction")
			// move it behind the rest of the queue so it cannot hold up newer rows
			if err := w.touch(ctx, txn.ID); err != nil {
				logger.WithError(err).Error("failed to requeue transaction")
			}
			continue
		}
		if applied && updated.Status.IsTerminal() {
			settled++
			logger.WithField("result", updated.Status).Info("transaction reconciled")
		}
	}

	logrus.WithFields(logrus.Fields{
		"checked": len(txns),
		"settled": settled,
	}).Debug("reconcile batch done")
	return settled
}

func touchTransaction(ctx context.Context, id uuid.UUID) error {
	return dbhelper.TouchTransaction(ctx, database.Restro, id, "", "")
}
