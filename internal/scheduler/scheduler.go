// Package scheduler runs periodic maintenance for SalesPipe, such as
// abandoning sessions that went idle, on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the idle-session sweep every five minutes.
const DefaultSweepSchedule = "*/5 * * * *"

// parser accepts standard 5-field expressions (min, hour, dom, month, dow)
// and descriptors such as @every 1m.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Task is a unit of scheduled work. The context is cancelled when the
// scheduler stops or the task exceeds its timeout.
type Task func(ctx context.Context) error

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTaskTimeout bounds how long a single run may take. Zero disables the bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, ctx: ctx, cancel: cancel, timeout: time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	c.Start()
	return s
}

// Validate reports whether expr is a schedule the scheduler accepts.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// AddJob schedules a plain task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddTask schedules a named task. Failures are logged and the schedule keeps running.
func (s *Scheduler) AddTask(name, expr string, task Task) error {
	if err := Validate(expr); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(expr, func() { s.run(name, task) })
	if err != nil {
		return err
	}
	slog.Info("Scheduler.AddTask: scheduled", "task", name, "schedule", expr)
	return nil
}

func (s *Scheduler) run(name string, task Task) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := task(ctx); err != nil {
		slog.Error("Scheduler.run: task failed", "task", name, "error", err)
		return
	}
	slog.Debug("Scheduler.run: task finished", "task", name, "duration", time.Since(start))
}

// Len returns the number of scheduled entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler, cancels running tasks and waits for them to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Sweeper abandons sessions idle longer than a threshold.
type Sweeper interface {
	SweepStale(ctx context.Context, idle time.Duration) (int, error)
}

// ScheduleSweep registers the idle-session sweep.
func ScheduleSweep(s *Scheduler, expr string, sw Sweeper, idle time.Duration) error {
	return s.AddTask("sweep_idle_sessions", expr, func(ctx context.Context) error {
		n, err := sw.SweepStale(ctx, idle)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("ScheduleSweep: abandoned idle sessions", "count", n, "idle", idle)
		}
		return nil
	})
}
