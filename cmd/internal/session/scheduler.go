package session

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultTickInterval is the default liveness sweep period.
const DefaultTickInterval = 1 * time.Second

// Scheduler runs the periodic liveness sweep. Each tick iterates a snapshot
// of session ids and asks the registry to promote any overdue session to
// missed. Per-session failures are swallowed so one bad session never aborts
// the rest of the pass.
type Scheduler struct {
	log      *slog.Logger
	registry *Registry
	every    time.Duration
}

// NewScheduler constructs a Scheduler. Non-positive periods fall back to
// DefaultTickInterval.
func NewScheduler(log *slog.Logger, registry *Registry, every time.Duration) *Scheduler {
	if every <= 0 {
		every = DefaultTickInterval
	}
	return &Scheduler{log: log, registry: registry, every: every}
}

// Run blocks until ctx is done, sweeping once per tick.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()

	s.log.Info("scheduler.start", "every", s.every)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler.stop")
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	for _, id := range s.registry.IDs() {
		if _, err := s.registry.MarkMissed(id); err != nil {
			// Sessions can disappear between the id snapshot and the check;
			// anything else is logged and the sweep moves on.
			if !errors.Is(err, ErrNotFound) {
				s.log.Error("scheduler.session.fail", "session_id", id, "err", err)
			}
		}
	}
}
