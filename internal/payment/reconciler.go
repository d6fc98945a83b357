package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kodisha/payments/internal/core/datamodel/transaction"
	"github.com/kodisha/payments/internal/core/events"
)

type ReconcileJob struct {
	Transaction *transaction.Transaction
}

type reconcileWorker struct {
	ID         int
	WorkerPool chan chan ReconcileJob
	JobChannel chan ReconcileJob
	Logger     *slog.Logger
}

func newReconcileWorker(id int, workerPool chan chan ReconcileJob, logger *slog.Logger) *reconcileWorker {
	return &reconcileWorker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan ReconcileJob),
		Logger:     logger,
	}
}

func (w *reconcileWorker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(context.Context, ReconcileJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker resolving transaction",
					"worker_id", w.ID,
					"transaction_id", job.Transaction.ID)
				processFunc(ctx, job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// ReconcilerConfig controls the sweep cadence. PendingAge is how long a
// pending transaction must sit untouched before it is queried against the
// provider; ExpireAfter is the hard deadline past which an unresolved
// transaction is failed outright.
type ReconcilerConfig struct {
	Interval    time.Duration
	PendingAge  time.Duration
	ExpireAfter time.Duration
	MaxWorkers  int
	BatchSize   int
}

// Reconciler sweeps pending transactions whose callback never arrived and
// resolves each via a status query, applying the same conditional
// transitions as the callback path so both can run concurrently.
type Reconciler struct {
	service *PaymentService
	cfg     ReconcilerConfig
	logger  *slog.Logger

	jobQueue   chan ReconcileJob
	workerPool chan chan ReconcileJob
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewReconciler(service *PaymentService, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PendingAge <= 0 {
		cfg.PendingAge = 2 * time.Minute
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 30 * time.Minute
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Reconciler{
		service:    service,
		cfg:        cfg,
		logger:     logger,
		jobQueue:   make(chan ReconcileJob, cfg.BatchSize),
		workerPool: make(chan chan ReconcileJob, cfg.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool and the sweep ticker. It returns
// immediately; use Shutdown to stop and drain.
func (r *Reconciler) Start() {
	r.once.Do(func() {
		for i := 0; i < r.cfg.MaxWorkers; i++ {
			worker := newReconcileWorker(i, r.workerPool, r.logger)
			worker.Start(r.ctx, &r.wg, r.resolve)
		}

		r.wg.Add(1)
		go r.dispatch()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()

			ticker := time.NewTicker(r.cfg.Interval)
			defer ticker.Stop()

			r.sweep()
			for {
				select {
				case <-ticker.C:
					r.sweep()
				case <-r.ctx.Done():
					return
				}
			}
		}()

		r.logger.Info("payment reconciler started",
			"interval", r.cfg.Interval,
			"pending_age", r.cfg.PendingAge,
			"expire_after", r.cfg.ExpireAfter,
			"max_workers", r.cfg.MaxWorkers)
	})
}

func (r *Reconciler) dispatch() {
	defer r.wg.Done()

	for {
		select {
		case job := <-r.jobQueue:
			select {
			case jobChannel := <-r.workerPool:
				select {
				case jobChannel <- job:
				case <-r.ctx.Done():
					return
				}
			case <-r.ctx.Done():
				return
			}
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Reconciler) Shutdown() {
	r.logger.Info("shutting down payment reconciler")
	r.cancel()
	r.wg.Wait()
	r.logger.Info("payment reconciler shutdown complete")
}

func (r *Reconciler) sweep() {
	txns, err := r.service.repo.ListPendingOlderThan(r.cfg.PendingAge, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("reconciler sweep failed to list pending transactions", "error", err)
		return
	}
	if len(txns) == 0 {
		return
	}

	r.logger.Info("reconciler sweep found stale pending transactions", "count", len(txns))

	for _, txn := range txns {
		select {
		case r.jobQueue <- ReconcileJob{Transaction: txn}:
		case <-r.ctx.Done():
			return
		}
	}
}

// resolve decides a single stale transaction's fate. Terminal transitions
// go through the same conditional repository updates as the callback path,
// so a callback landing mid-query cannot be overwritten.
func (r *Reconciler) resolve(ctx context.Context, job ReconcileJob) {
	txn := job.Transaction
	age := time.Since(txn.CreatedAt)

	if txn.CheckoutRequestID == nil || *txn.CheckoutRequestID == "" {
		// The process died between gateway acceptance and persisting the
		// checkout id. There is nothing to query; expire it once it is
		// old enough that no callback can still arrive.
		if age > r.cfg.ExpireAfter {
			r.fail(ctx, txn, "Payment initiation was never confirmed")
		}
		return
	}

	result, err := r.service.gateway.QueryStatus(ctx, *txn.CheckoutRequestID)
	if err != nil {
		r.logger.Warn("reconciler status query failed",
			"error", err,
			"transaction_id", txn.ID,
			"checkout_request_id", *txn.CheckoutRequestID)
		return
	}

	switch {
	case result.Success:
		// The query response carries no receipt number; the row completes
		// without one and a later callback replay is a no-op.
		if err := r.service.completeTransaction(ctx, txn, ""); err != nil {
			r.logger.Error("reconciler failed to complete transaction",
				"error", err,
				"transaction_id", txn.ID)
		}

	case result.ResultCode != "" && result.ResultCode != "0":
		reason := result.ResponseDescription
		if reason == "" {
			reason = "Payment failed"
		}
		r.fail(ctx, txn, reason)

	default:
		// No verdict yet. Leave it pending unless it has outlived the
		// window in which the provider could still resolve it.
		if age > r.cfg.ExpireAfter {
			r.fail(ctx, txn, "Payment confirmation timed out")
		}
	}
}

func (r *Reconciler) fail(ctx context.Context, txn *transaction.Transaction, reason string) {
	applied, err := r.service.repo.MarkFailed(txn.ID, reason)
	if err != nil {
		r.logger.Error("reconciler failed to mark transaction failed",
			"error", err,
			"transaction_id", txn.ID)
		return
	}
	if !applied {
		return
	}

	r.logger.Info("reconciler failed stale transaction",
		"transaction_id", txn.ID,
		"booking_id", txn.BookingID,
		"reason", reason)

	r.service.eventBus.Publish(ctx, events.NewPaymentFailedEvent(txn.ID, txn.BookingID, txn.UserID, txn.Amount, reason))
}
