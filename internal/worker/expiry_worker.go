package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eventlane/ticketing/internal/service"
	"github.com/eventlane/ticketing/pkg/logger"
	"go.uber.org/zap"
)

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// ScanInterval is the interval between scans for stale reservations
	ScanInterval time.Duration
	// BatchSize is the number of bookings claimed per scan
	BatchSize int
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		ScanInterval: 30 * time.Second,
		BatchSize:    100,
	}
}

// ExpiryWorker scans for pending bookings whose reservation window has
// lapsed and cancels them, releasing their inventory. Safe to run on
// multiple instances: each candidate is claimed with a conditional
// update, so a booking expires exactly once.
type ExpiryWorker struct {
	bookingService service.BookingService
	config         *ExpiryWorkerConfig
	log            *logger.Logger
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool

	// Stats
	totalExpired     int64
	lastScanTime     time.Time
	lastExpiredCount int
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(bookingService service.BookingService, config *ExpiryWorkerConfig) *ExpiryWorker {
	if config == nil {
		config = DefaultExpiryWorkerConfig()
	}

	return &ExpiryWorker{
		bookingService: bookingService,
		config:         config,
		log:            logger.Get().With(zap.String("worker", "expiry")),
		stopCh:         make(chan struct{}),
	}
}

// Start starts the expiry worker
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry worker")

	w.wg.Add(1)
	go w.scan(ctx)

	return nil
}

// Stop stops the expiry worker
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Expiry worker stopped")
}

// scan periodically sweeps stale reservations
func (w *ExpiryWorker) scan(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep expires one batch of stale reservations
func (w *ExpiryWorker) sweep(ctx context.Context) {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	expired, err := w.bookingService.ExpireReservations(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to expire reservations: %v", err))
		return
	}

	w.mu.Lock()
	w.totalExpired += int64(expired)
	w.lastExpiredCount = expired
	w.mu.Unlock()

	if expired > 0 {
		w.log.Info(fmt.Sprintf("Expired %d stale reservations", expired))
	}
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}
