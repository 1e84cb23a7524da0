package syncengine

import (
	"context"
	"time"
)

// Scheduler runs incremental passes on a ticker and on demand.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	timeout  time.Duration
	trigger  chan struct{}
}

func NewScheduler(e *Engine, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{engine: e, interval: interval, timeout: timeout, trigger: make(chan struct{}, 1)}
}

// Trigger requests a pass as soon as possible. Requests made while one is
// already waiting are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.once(ctx)
		case <-s.trigger:
			s.once(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) once(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	// errors are already logged and kept in State
	_, _ = s.engine.SyncIncremental(ctx)
}
