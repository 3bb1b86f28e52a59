package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/internal/repository"
	"github.com/eventlane/ticketing/internal/service"
	"github.com/eventlane/ticketing/pkg/logger"
	"github.com/eventlane/ticketing/pkg/retry"
	"go.uber.org/zap"
)

// ReconcileWorkerConfig contains configuration for the reconcile worker
type ReconcileWorkerConfig struct {
	// ScanInterval is the interval between scans for stale transactions
	ScanInterval time.Duration
	// StaleAfter is how long a transaction may sit pending before we
	// stop waiting for its webhook and poll the gateway instead
	StaleAfter time.Duration
	// BatchSize is the number of transactions polled per scan
	BatchSize int
	// Retry controls backoff for gateway polls
	Retry *retry.Config
}

// DefaultReconcileWorkerConfig returns default configuration
func DefaultReconcileWorkerConfig() *ReconcileWorkerConfig {
	return &ReconcileWorkerConfig{
		ScanInterval: 1 * time.Minute,
		StaleAfter:   5 * time.Minute,
		BatchSize:    50,
		Retry: &retry.Config{
			MaxRetries:      3,
			InitialInterval: 1 * time.Second,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}
}

// ReconcileWorker polls the payment gateway for transactions whose
// webhook never arrived. A poll goes through the same idempotent
// resolution path as a webhook, so a late webhook racing the poll is
// harmless.
type ReconcileWorker struct {
	paymentRepo    repository.PaymentRepository
	paymentService service.PaymentService
	config         *ReconcileWorkerConfig
	log            *logger.Logger
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool

	// Stats
	totalPolled   int64
	totalResolved int64
	lastScanTime  time.Time
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(
	paymentRepo repository.PaymentRepository,
	paymentService service.PaymentService,
	config *ReconcileWorkerConfig,
) *ReconcileWorker {
	if config == nil {
		config = DefaultReconcileWorkerConfig()
	}
	if config.Retry == nil {
		config.Retry = DefaultReconcileWorkerConfig().Retry
	}

	return &ReconcileWorker{
		paymentRepo:    paymentRepo,
		paymentService: paymentService,
		config:         config,
		log:            logger.Get().With(zap.String("worker", "reconcile")),
		stopCh:         make(chan struct{}),
	}
}

// Start starts the reconcile worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reconcile worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting payment reconcile worker")

	w.wg.Add(1)
	go w.scan(ctx)

	return nil
}

// Stop stops the reconcile worker
func (w *ReconcileWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping payment reconcile worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Payment reconcile worker stopped")
}

func (w *ReconcileWorker) scan(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

// reconcile polls the gateway for one batch of stale pending transactions
func (w *ReconcileWorker) reconcile(ctx context.Context) {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	cutoff := time.Now().UTC().Add(-w.config.StaleAfter)
	stale, err := w.paymentRepo.GetStalePending(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to list stale pending transactions: %v", err))
		return
	}

	if len(stale) == 0 {
		return
	}

	w.log.Info(fmt.Sprintf("Reconciling %d stale pending transactions", len(stale)))

	for _, tx := range stale {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		w.mu.Lock()
		w.totalPolled++
		w.mu.Unlock()

		txRef := tx.TxRef
		result := retry.Do(ctx, w.config.Retry, func(ctx context.Context) error {
			ack, err := w.paymentService.VerifyTransaction(ctx, txRef)
			if err != nil {
				if errors.Is(err, domain.ErrTransactionNotFound) || errors.Is(err, domain.ErrReconciliationConflict) {
					return retry.Permanent(err)
				}
				return err
			}
			if ack.Result == service.WebhookResultProcessed {
				w.mu.Lock()
				w.totalResolved++
				w.mu.Unlock()
				w.log.Info(fmt.Sprintf("Reconciled transaction via poll: tx_ref=%s", txRef))
			}
			return nil
		})
		if result.Err != nil {
			w.log.Warn(fmt.Sprintf("Failed to reconcile transaction: tx_ref=%s err=%v", txRef, result.Err))
		}
	}
}

// GetStats returns worker statistics
func (w *ReconcileWorker) GetStats() *ReconcileWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ReconcileWorkerStats{
		IsRunning:     w.running,
		TotalPolled:   w.totalPolled,
		TotalResolved: w.totalResolved,
		LastScanTime:  w.lastScanTime,
	}
}

// ReconcileWorkerStats contains worker statistics
type ReconcileWorkerStats struct {
	IsRunning     bool      `json:"is_running"`
	TotalPolled   int64     `json:"total_polled"`
	TotalResolved int64     `json:"total_resolved"`
	LastScanTime  time.Time `json:"last_scan_time"`
}
