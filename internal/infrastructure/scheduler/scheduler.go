package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
)

type State int

const (
	Waiting State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "waiting"
}

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type Job func(ctx context.Context) error

// Scheduler runs a job on a cron schedule, one run at a time. The next run is
// always computed from the clock at the moment a run finishes, so an overrun
// pushes the following run to the next slot instead of firing immediately.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	logger   Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state State
	next  time.Time
}

// New parses a standard five-field cron expression. A CRON_TZ= or TZ= prefix
// selects the time zone.
func New(spec string, logger Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}

	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// Next returns the first scheduled time strictly after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

func (s *Scheduler) State() State {
	return s.state
}

// NextRun is the wake time the scheduler is currently waiting for.
func (s *Scheduler) NextRun() time.Time {
	return s.next
}

// Run loops until ctx is cancelled. Errors and panics escaping job are logged
// and the loop moves on to the next slot. Cancellation returns nil.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	s.logger.Infof("Running cron schedule %q", s.spec)

	for {
		s.state = Waiting
		s.next = s.schedule.Next(s.now())
		if s.next.IsZero() {
			return fmt.Errorf("cron schedule %q has no upcoming run", s.spec)
		}

		if err := s.waitUntil(ctx, s.next); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		s.state = Running
		s.runJob(ctx, job)

		if ctx.Err() != nil {
			s.state = Waiting
			return nil
		}
	}
}

func (s *Scheduler) waitUntil(ctx context.Context, next time.Time) error {
	announced := false
	for {
		remaining := next.Sub(s.now())
		if remaining <= 0 {
			return nil
		}
		if !announced {
			s.logger.Infof("Next run at %s (in %s). Sleeping...",
				next.Format(time.RFC3339), remaining.Round(time.Second))
			announced = true
		}
		if err := s.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Backup run panicked: %v\n%s", r, debug.Stack())
		}
	}()

	if err := job(ctx); err != nil {
		s.logger.Errorf("Encountered an error while backing up the databases: %v", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
