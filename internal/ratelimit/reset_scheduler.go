package ratelimit

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ResetScheduler is the single background task that sleeps
// until the next local-midnight boundary, zeros every registered
// upstream's counter, and repeats.
type ResetScheduler struct {
	registry *Registry
	clock    Clock
	log      hclog.Logger
}

// NewResetScheduler builds a scheduler bound to registry, using clock
// for wall-clock reads and sleeps.
func NewResetScheduler(registry *Registry, clock Clock, log hclog.Logger) *ResetScheduler {
	return &ResetScheduler{registry: registry, clock: clock, log: log.Named("reset-scheduler")}
}

// Run is the scheduler's long-running loop. When ctx is cancelled it
// exits right away, without performing a reset.
func (s *ResetScheduler) Run(ctx context.Context) {
	for {
		now := s.clock.Now()
		target := nextMidnight(now)

		select {
		case <-s.clock.After(target.Sub(now)):
		case <-ctx.Done():
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		s.registry.ForEach(func(u *Upstream) { u.ResetCounter() })
		s.log.Info("reset daily quota counters")

		// Sleep one extra second to avoid re-entry within the same
		// wall-clock second.
		select {
		case <-s.clock.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// nextMidnight returns 00:00:00 of the day after now, in now's
// location. Clock jumps forward skip the reset opportunity; clock
// jumps backward may trigger a duplicate reset, which is idempotent.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	midnightToday := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return midnightToday.AddDate(0, 0, 1)
}
