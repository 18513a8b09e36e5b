// Package schedule runs recurring tasks defined with cron expressions.
//
// A Schedule is either driven once a minute from outside (RunDue, as the
// "cron" console command does from a system crontab) or runs its own clock
// with Work.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Parser accepts five-field expressions and descriptors such as @hourly
// and @every 10m.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CommandRunner runs a console command by name.
type CommandRunner func(ctx context.Context, name string, args []string) error

// Event is one scheduled task.
type Event struct {
	Spec        string
	Name        string
	description string

	schedule  cron.Schedule
	fn        func(context.Context) error
	noOverlap bool
	running   atomic.Bool
}

// Description sets the text shown by cron:list.
func (e *Event) Description(d string) *Event {
	e.description = d
	return e
}

// WithoutOverlapping skips a run while the previous one is still going.
func (e *Event) WithoutOverlapping() *Event {
	e.noOverlap = true
	return e
}

// Summary returns the description, or the name when there is none.
func (e *Event) Summary() string {
	if e.description != "" {
		return e.description
	}
	return e.Name
}

// Next returns the first run time after t.
func (e *Event) Next(t time.Time) time.Time { return e.schedule.Next(t) }

// IsDue reports whether the event runs in the minute containing t.
// Interval descriptors (@every) are only honoured by Work.
func (e *Event) IsDue(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return e.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

// Schedule holds the scheduled events.
type Schedule struct {
	mu     sync.RWMutex
	events []*Event
	runner CommandRunner
	loc    *time.Location
	log    *zap.Logger
}

// New creates an empty Schedule.
func New(log *zap.Logger) *Schedule {
	if log == nil {
		log = zap.NewNop()
	}
	return &Schedule{loc: time.Local, log: log}
}

// SetLocation sets the timezone the expressions are evaluated in.
func (s *Schedule) SetLocation(loc *time.Location) { s.loc = loc }

// SetCommandRunner sets how Command events run.
func (s *Schedule) SetCommandRunner(r CommandRunner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

// Call schedules a function.
//
//	s.Call("*/5 * * * *", prune).Description("prune expired tokens")
func (s *Schedule) Call(spec string, fn func(context.Context) error) (*Event, error) {
	return s.add(spec, "Closure", fn)
}

// Command schedules a console command.
//
//	s.Command("@daily", "cache:clear", "--all")
func (s *Schedule) Command(spec, name string, args ...string) (*Event, error) {
	label := strings.TrimSpace(name + " " + strings.Join(args, " "))
	return s.add(spec, label, func(ctx context.Context) error {
		s.mu.RLock()
		run := s.runner
		s.mu.RUnlock()
		if run == nil {
			return fmt.Errorf("schedule: no command runner for [%s]", name)
		}
		return run(ctx, name, args)
	})
}

func (s *Schedule) add(spec, name string, fn func(context.Context) error) (*Event, error) {
	sched, err := Parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid expression %q: %w", spec, err)
	}
	e := &Event{Spec: spec, Name: name, schedule: sched, fn: fn}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return e, nil
}

// Events returns the scheduled events in registration order.
func (s *Schedule) Events() []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Event(nil), s.events...)
}

// DueEvents returns the events that run in the minute containing now.
func (s *Schedule) DueEvents(now time.Time) []*Event {
	now = now.In(s.loc)
	var due []*Event
	for _, e := range s.Events() {
		if e.IsDue(now) {
			due = append(due, e)
		}
	}
	return due
}

// RunDue runs the due events one after another and returns the names that
// ran. Failures are logged and joined into the returned error.
func (s *Schedule) RunDue(ctx context.Context, now time.Time) ([]string, error) {
	var (
		ran  []string
		errs []error
	)
	for _, e := range s.DueEvents(now) {
		ok, err := s.run(ctx, e)
		if !ok {
			continue
		}
		ran = append(ran, e.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	return ran, errors.Join(errs...)
}

// run executes e unless it overlaps a running instance. ok is false when the
// run was skipped.
func (s *Schedule) run(ctx context.Context, e *Event) (ok bool, err error) {
	if e.noOverlap && !e.running.CompareAndSwap(false, true) {
		s.log.Info("skipping overlapping event", zap.String("event", e.Name))
		return false, nil
	}
	if !e.noOverlap {
		e.running.Store(true)
	}
	defer e.running.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ok, err = true, fmt.Errorf("panic: %v", r)
			s.log.Error("scheduled event panicked", zap.String("event", e.Name), zap.Any("panic", r))
		}
	}()
	err = e.fn(ctx)
	if err != nil {
		s.log.Error("scheduled event failed", zap.String("event", e.Name), zap.Error(err))
	} else {
		s.log.Info("scheduled event ran", zap.String("event", e.Name), zap.Duration("duration", time.Since(start)))
	}
	return true, err
}

// Entry describes an event for listings.
type Entry struct {
	Spec        string
	Name        string
	Description string
	Next        time.Time
}

// List describes every event with its next run after now.
func (s *Schedule) List(now time.Time) []Entry {
	now = now.In(s.loc)
	events := s.Events()
	out := make([]Entry, len(events))
	for i, e := range events {
		out[i] = Entry{Spec: e.Spec, Name: e.Name, Description: e.description, Next: e.Next(now)}
	}
	return out
}

// Work runs the events on their own clock until ctx is done, then waits for
// running events to finish.
func (s *Schedule) Work(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(Parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.log.Sugar()}),
	)
	for _, e := range s.Events() {
		c.Schedule(e.schedule, cron.FuncJob(func() { _, _ = s.run(ctx, e) }))
	}
	c.Start()
	s.log.Info("schedule worker started", zap.Int("events", len(s.Events())))
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("schedule worker stopped")
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}
