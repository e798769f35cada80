package core

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/context"
)

// ResetScheduler fires once at every local midnight, plus an optional
// non-destructive warning a fixed lead time before it. The delay is
// recomputed from the wall clock after every fire instead of re-arming a
// fixed interval, so the schedule does not drift across DST changes.
//
// The scheduler holds no chat state; it only invokes the callbacks, which
// are expected to trigger the bulk clear and the client notifications.
type ResetScheduler struct {
	loc      *time.Location
	warnLead time.Duration
	now      func() time.Time
	logger   *slog.Logger

	onWarning func(midnight time.Time)
	onReset   func(midnight time.Time)
}

type ResetSchedulerOption func(*ResetScheduler)

// WithWarningLead sets how long before midnight the warning fires.
// A zero or negative lead disables the warning.
func WithWarningLead(lead time.Duration) ResetSchedulerOption {
	return func(s *ResetScheduler) {
		s.warnLead = lead
	}
}

// WithSchedulerClock overrides the time source for tests.
func WithSchedulerClock(now func() time.Time) ResetSchedulerOption {
	return func(s *ResetScheduler) {
		s.now = now
	}
}

func NewResetScheduler(loc *time.Location, logger *slog.Logger, opts ...ResetSchedulerOption) *ResetScheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &ResetScheduler{
		loc:       loc,
		warnLead:  10 * time.Minute,
		now:       time.Now,
		logger:    logger,
		onWarning: func(time.Time) {},
		onReset:   func(time.Time) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ResetScheduler) OnWarning(f func(midnight time.Time)) {
	s.onWarning = f
}

func (s *ResetScheduler) OnReset(f func(midnight time.Time)) {
	s.onReset = f
}

// NextMidnight returns the first midnight in loc strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
}

// Start runs the scheduler until the context is cancelled.
func (s *ResetScheduler) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx)
		s.logger.Info("reset scheduler stopped")
	}()
}

func (s *ResetScheduler) run(ctx context.Context) {
	for {
		now := s.now()
		midnight := NextMidnight(now, s.loc)
		s.logger.Info("reset scheduled",
			slog.Time("midnight", midnight),
			slog.String("in", midnight.Sub(now).Round(time.Second).String()))

		resetTimer := time.NewTimer(midnight.Sub(now))

		var warnTimer *time.Timer
		var warnC <-chan time.Time
		if s.warnLead > 0 {
			if d := midnight.Add(-s.warnLead).Sub(now); d > 0 {
				warnTimer = time.NewTimer(d)
				warnC = warnTimer.C
			}
		}

		fired := false
		for !fired {
			select {
			case <-ctx.Done():
				resetTimer.Stop()
				if warnTimer != nil {
					warnTimer.Stop()
				}
				return
			case <-warnC:
				warnC = nil
				s.logger.Info(fmt.Sprintf("midnight in %s, warning clients", s.warnLead))
				s.onWarning(midnight)
			case <-resetTimer.C:
				if warnTimer != nil {
					warnTimer.Stop()
				}
				s.logger.Info("midnight reached, clearing state")
				s.onReset(midnight)
				fired = true
			}
		}
	}
}
