/*
scheduler.go - Periodic sweep of unpaid orders

PURPOSE:
  Each order has an in-process expiry timer, but timers do not survive a
  restart. The sweeper periodically discards every pending booking whose
  payment window has elapsed, so stale orders are removed no matter how the
  process was restarted.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates to Reservations.ExpireElapsed, which only removes bookings
    that are still pending and past their deadline
  - Runs once immediately on start

CONFIGURATION:
  - CheckInterval: How often to check (default: 30 seconds)
  - Enabled: Whether sweeper is active (default: true)

USAGE:
  sweeper := NewPendingSweeper(reservations, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - insurance/reservation.go: Expire, ExpireElapsed
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Expirer discards pending bookings whose payment window elapsed.
type Expirer interface {
	ExpireElapsed(ctx context.Context) (int, error)
}

// PendingSweeper periodically expires unpaid orders.
type PendingSweeper struct {
	Reservations  Expirer
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPendingSweeper creates a new sweeper.
func NewPendingSweeper(reservations Expirer, logger *slog.Logger) *PendingSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingSweeper{
		Reservations:  reservations,
		Logger:        logger,
		CheckInterval: 30 * time.Second,
		Enabled:       true,
	}
}

// Start begins the sweeper.
func (ps *PendingSweeper) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Logger.Info("sweeper disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run(ps.ticker, ps.stop)

	ps.Logger.Info("sweeper started", "interval", ps.CheckInterval)
}

// Stop stops the sweeper and waits for an in-flight sweep.
func (ps *PendingSweeper) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Logger.Info("sweeper stopped")
	}
}

func (ps *PendingSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.sweep()

	for {
		select {
		case <-ticker.C:
			ps.sweep()
		case <-stop:
			return
		}
	}
}

func (ps *PendingSweeper) sweep() int {
	removed, err := ps.Reservations.ExpireElapsed(context.Background())
	if err != nil {
		ps.Logger.Error("sweep pending bookings", "removed", removed, "error", err)
		return removed
	}
	if removed > 0 {
		ps.Logger.Info("swept pending bookings", "removed", removed)
	}
	return removed
}

// RunNow triggers an immediate sweep (for testing/admin) and returns how
// many bookings it removed.
func (ps *PendingSweeper) RunNow() int {
	return ps.sweep()
}

// NextRunTime returns when the next scheduled check will occur.
func (ps *PendingSweeper) NextRunTime() time.Time {
	return time.Now().Add(ps.CheckInterval)
}
