// Package scheduler drives time-based rule triggers. A single loop ticks on a
// fixed interval, polls for enabled time-based rules, matches them against
// the owners' events, and hands each match to the engine without waiting for
// the execution to finish.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/metrics"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

const (
	// DefaultInterval is the tick period of the reference deployment.
	DefaultInterval = time.Minute

	// matchWindow is how far an event's start/end may drift from the
	// computed target and still count as a match.
	matchWindow = 30 * time.Second

	// defaultStartsInMinutes and defaultEndsInMinutes apply when a rule's
	// trigger config does not set "minutes".
	defaultStartsInMinutes = 60
	defaultEndsInMinutes   = 15

	loadRetries = 3
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Dispatcher accepts rule executions for asynchronous processing.
type Dispatcher interface {
	Dispatch(r *rule.Rule, ec *smartvalue.Context, executedBy string) bool
}

// Scheduler polls time-based rules and dispatches matches.
type Scheduler struct {
	rules     rule.Store
	events    event.Store
	calendars event.CalendarStore
	dispatch  Dispatcher
	clock     Clock
	log       *slog.Logger
	interval  time.Duration

	// sleep is swapped out in tests to skip real backoff waits.
	sleep func(time.Duration)
}

// New creates a Scheduler. A non-positive interval falls back to the default.
func New(rules rule.Store, events event.Store, calendars event.CalendarStore, d Dispatcher, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		rules:     rules,
		events:    events,
		calendars: calendars,
		dispatch:  d,
		clock:     SystemClock(),
		log:       log,
		interval:  interval,
		sleep:     time.Sleep,
	}
}

// WithClock overrides the clock, for tests.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// SetSleep overrides the retry backoff sleeper, for tests.
func (s *Scheduler) SetSleep(fn func(time.Duration)) {
	s.sleep = fn
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		}
	}
}

// Tick runs one polling cycle. Load failures are retried with a short linear
// backoff; if the store stays unreachable the tick ends early and the next
// tick starts fresh.
func (s *Scheduler) Tick(ctx context.Context) {
	metrics.SchedulerTicks.Inc()

	rules, err := s.loadRules(ctx)
	if err != nil {
		// Connection loss during shutdown or a database restart is
		// expected; the next tick recovers on its own.
		s.log.Debug("skipping tick, time-based rules unavailable", "err", err)
		metrics.SchedulerErrors.Inc()
		return
	}

	now := s.clock.Now()
	for _, r := range rules {
		switch r.Trigger {
		case rule.TriggerEventStartsIn:
			s.matchOffset(ctx, r, now, r.TriggerMinutes(defaultStartsInMinutes), eventStart)
		case rule.TriggerEventEndsIn:
			s.matchOffset(ctx, r, now, r.TriggerMinutes(defaultEndsInMinutes), eventEnd)
		case rule.TriggerScheduledTime:
			s.matchScheduled(ctx, r, now)
		}
	}
}

func (s *Scheduler) loadRules(ctx context.Context) ([]*rule.Rule, error) {
	rules, err := s.rules.ListEnabledByTrigger(ctx, rule.TimeBasedTriggers()...)
	for attempt := 1; err != nil && attempt <= loadRetries; attempt++ {
		s.sleep(time.Duration(attempt) * time.Second)
		rules, err = s.rules.ListEnabledByTrigger(ctx, rule.TimeBasedTriggers()...)
	}
	return rules, err
}

type eventBoundary func(*event.Event) (date, clock string)

func eventStart(ev *event.Event) (string, string) { return ev.StartDate, ev.StartTime }
func eventEnd(ev *event.Event) (string, string)   { return ev.EndDate, ev.EndTime }

// matchOffset handles the starts-in and ends-in triggers: target = now plus
// the configured minutes, candidates are the owner's events on the target
// date, and a candidate matches when its boundary falls within the window
// around the target.
func (s *Scheduler) matchOffset(ctx context.Context, r *rule.Rule, now time.Time, minutes int, boundary eventBoundary) {
	target := now.Add(time.Duration(minutes) * time.Minute)
	targetDate := target.Format("2006-01-02")

	candidates, err := s.events.FindByOwnerAndDate(ctx, r.OwnerID, targetDate)
	if err != nil {
		s.log.Warn("failed to load candidate events", "rule_id", r.ID, "date", targetDate, "err", err)
		return
	}
	for _, ev := range candidates {
		date, clock := boundary(ev)
		at, ok := combine(date, clock, target.Location())
		if !ok {
			continue
		}
		if diff := at.Sub(target); diff < -matchWindow || diff > matchWindow {
			continue
		}
		s.fire(ctx, r, ev, now)
	}
}

// matchScheduled fires the rule against every event the owner has. The
// trigger's schedule configuration is stored but not yet consulted here.
func (s *Scheduler) matchScheduled(ctx context.Context, r *rule.Rule, now time.Time) {
	events, err := s.events.ListByOwner(ctx, r.OwnerID)
	if err != nil {
		s.log.Warn("failed to load owner events", "rule_id", r.ID, "err", err)
		return
	}
	for _, ev := range events {
		s.fire(ctx, r, ev, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, r *rule.Rule, ev *event.Event, now time.Time) {
	var cal *event.Calendar
	if ev.CalendarID != "" {
		c, err := s.calendars.FindByID(ctx, ev.CalendarID)
		if err != nil {
			s.log.Warn("calendar lookup failed", "rule_id", r.ID, "calendar_id", ev.CalendarID, "err", err)
		} else {
			cal = c
		}
	}

	ec := smartvalue.NewContext(r.Trigger, ev.Clone(), cal)
	ec.Trigger.Timestamp = now

	metrics.SchedulerMatches.Inc()
	if !s.dispatch.Dispatch(r, ec, "") {
		s.log.Warn("execution queue full, match dropped", "rule_id", r.ID, "event_id", ev.ID)
	}
}

// combine parses a date and clock string pair into a point in time.
func combine(date, clock string, loc *time.Location) (time.Time, bool) {
	if date == "" || clock == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
