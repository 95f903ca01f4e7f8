package intel

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler periodically refreshes the reputation engine in the background.
// A failed refresh is retried only at the next scheduled interval.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a refresh scheduler. A non-positive interval disables
// it: Start becomes a no-op.
func NewScheduler(engine *Engine, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background refresh loop. The first refresh runs
// immediately; the engine's own throttle still applies.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logger.Info("reputation scheduler disabled by configuration")
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		s.logger.Info("reputation scheduler started",
			zap.Duration("interval", s.interval))

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.refresh()
		for {
			select {
			case <-ticker.C:
				s.refresh()
			case <-s.stop:
				s.logger.Info("reputation scheduler stopped")
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.engine.Update(ctx)
}
