package metering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quizforge/server/internal/infra/events"
	"go.uber.org/zap"
)

// ExpireStale moves pending reservations past their expiry to expired.
// Expiry has no balance effect; an expired reservation can still be settled
// if its operation turns out to have completed.
func (d *Domain) ExpireStale(ctx context.Context) (int, error) {
	n, err := d.store.ExpireReservations(ctx, d.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	if n > 0 {
		d.logger.Info("expired stale reservations", zap.Int64("count", n))
		d.publish(ctx, events.NewReservationsExpiredEvent(int(n)))
	}
	return int(n), nil
}

// Sweeper periodically expires stale reservations.
type Sweeper struct {
	domain   *Domain
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(domain *Domain, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		domain:   domain,
		interval: interval,
		logger:   logger.Named("sweeper"),
	}
}

// Start launches the sweep loop. Calling Start while running has no effect;
// a stopped sweeper can be started again.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.logger.Info("starting reservation sweeper", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.loop(s.stopCh)
}

// Stop stops the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("reservation sweeper stopped")
}

func (s *Sweeper) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if _, err := s.domain.ExpireStale(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}
