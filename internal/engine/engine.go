package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Csepi/cal3-sub006/internal/action"
	"github.com/Csepi/cal3-sub006/internal/audit"
	"github.com/Csepi/cal3-sub006/internal/condition"
	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/metrics"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// ExecutedBySystem marks executions that were not requested by a user.
const ExecutedBySystem = ""

// Config sizes the execution dispatch pool.
type Config struct {
	Workers    int
	QueueDepth int
}

// Engine runs rules: it evaluates conditions, executes the rule's actions in
// order through the executor registry, and records an audit entry for every
// run, including skips.
type Engine struct {
	rules     rule.Store
	registry  *action.Registry
	audits    audit.Store
	retention *audit.Retention
	log       *slog.Logger
	pool      *workerPool[*dispatch]
}

type dispatch struct {
	r          *rule.Rule
	ec         *smartvalue.Context
	executedBy string
}

// New creates an Engine and starts its dispatch pool.
func New(ctx context.Context, rules rule.Store, reg *action.Registry, audits audit.Store, retention *audit.Retention, conf Config, log *slog.Logger) *Engine {
	e := &Engine{
		rules:     rules,
		registry:  reg,
		audits:    audits,
		retention: retention,
		log:       log,
	}
	e.pool = newWorkerPool(ctx, conf.Workers, conf.QueueDepth, func(ctx context.Context, d *dispatch) error {
		e.Run(ctx, d.r, d.ec, d.executedBy)
		return nil
	})
	return e
}

// Dispatch enqueues a rule execution for background processing. Returns false
// if the queue is full; the caller decides whether that is fatal.
func (e *Engine) Dispatch(r *rule.Rule, ec *smartvalue.Context, executedBy string) bool {
	ok := e.pool.Submit(&dispatch{r: r, ec: ec, executedBy: executedBy})
	if !ok {
		metrics.ExecutionsDropped.Inc()
	}
	metrics.QueueUtilization.Set(e.QueueUtilization())
	return ok
}

// QueueUtilization returns queue used / capacity (0-1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// TriggerEvent runs every enabled rule listening on the given lifecycle
// trigger against the event, synchronously relative to the caller. The
// calendar system invokes this from its create/update/delete/import hooks.
func (e *Engine) TriggerEvent(ctx context.Context, t rule.TriggerType, ev *event.Event, cal *event.Calendar) ([]*audit.Entry, error) {
	rules, err := e.rules.ListEnabledByTrigger(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list rules for trigger %s: %w", t, err)
	}
	var entries []*audit.Entry
	for _, r := range rules {
		ec := smartvalue.NewContext(t, ev.Clone(), cal)
		entries = append(entries, e.Run(ctx, r, ec, ExecutedBySystem))
	}
	return entries, nil
}

// Run executes one rule against one trigger context and returns the recorded
// audit entry. It never returns an error: failures are captured in the entry
// so that the caller's control flow stays uniform.
func (e *Engine) Run(ctx context.Context, r *rule.Rule, ec *smartvalue.Context, executedBy string) *audit.Entry {
	start := time.Now()

	entry := &audit.Entry{
		ID:             uuid.NewString(),
		RuleID:         r.ID,
		TriggerType:    ec.Trigger.Type,
		TriggerContext: triggerContext(ec),
		ExecutedBy:     executedBy,
		ExecutedAt:     start,
	}
	if ec.Event != nil {
		entry.EventID = ec.Event.ID
	}

	outcome := evaluateConditions(r, ec)
	entry.Conditions = outcome

	if !outcome.Passed {
		entry.Status = audit.StatusSkipped
		e.finish(ctx, r, entry, start)
		return entry
	}

	actions := append([]rule.Action(nil), r.Actions...)
	rule.SortActions(actions)

	succeeded, failed := 0, 0
	for _, a := range actions {
		res := e.runAction(ctx, a, ec)
		entry.ActionResults = append(entry.ActionResults, *res)
		status := "success"
		if res.Success {
			succeeded++
		} else {
			failed++
			status = "error"
		}
		metrics.ActionsExecuted.WithLabelValues(string(a.Type), status).Inc()
	}

	switch {
	case failed == 0:
		entry.Status = audit.StatusSuccess
	case succeeded == 0:
		entry.Status = audit.StatusFailure
		entry.Error = fmt.Sprintf("all %d actions failed", failed)
	default:
		entry.Status = audit.StatusPartialSuccess
		entry.Error = fmt.Sprintf("%d of %d actions failed", failed, failed+succeeded)
	}

	e.finish(ctx, r, entry, start)

	if err := e.rules.RecordExecution(ctx, r.ID, start); err != nil {
		e.log.Warn("failed to record rule execution", "rule_id", r.ID, "err", err)
	}
	return entry
}

// evaluateConditions shields the worker goroutine from a panicking condition
// check; a panic becomes a failed outcome so the execution is audited as
// skipped instead of killing the process.
func evaluateConditions(r *rule.Rule, ec *smartvalue.Context) (out *condition.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = &condition.Outcome{
				Passed: false,
				Evaluations: []condition.Evaluation{{
					Passed: false,
					Error:  fmt.Sprintf("condition evaluation panicked: %v", p),
				}},
			}
		}
	}()
	return condition.Evaluate(r, ec)
}

// runAction resolves and invokes a single executor. A panicking executor is
// converted into a failed result so the remaining actions still run.
func (e *Engine) runAction(ctx context.Context, a rule.Action, ec *smartvalue.Context) (res *action.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("action executor panicked", "action_id", a.ID, "action_type", a.Type, "panic", r)
			res = &action.Result{
				ActionID:   a.ID,
				ActionType: a.Type,
				Success:    false,
				Error:      fmt.Sprintf("executor panic: %v", r),
				ExecutedAt: time.Now().UTC(),
			}
		}
	}()

	exec, err := e.registry.Get(a.Type)
	if err != nil {
		return &action.Result{
			ActionID:   a.ID,
			ActionType: a.Type,
			Success:    false,
			Error:      err.Error(),
			ExecutedAt: time.Now().UTC(),
		}
	}
	return exec.Execute(ctx, a, ec)
}

func (e *Engine) finish(ctx context.Context, r *rule.Rule, entry *audit.Entry, start time.Time) {
	entry.DurationMs = time.Since(start).Milliseconds()

	metrics.RuleExecutions.WithLabelValues(string(entry.TriggerType), string(entry.Status)).Inc()
	metrics.ExecutionDuration.Observe(float64(entry.DurationMs))

	if err := e.audits.Insert(ctx, entry); err != nil {
		e.log.Error("failed to persist audit entry", "rule_id", r.ID, "err", err)
		return
	}
	if e.retention != nil {
		if _, err := e.retention.Enforce(ctx, r.ID); err != nil {
			e.log.Warn("audit retention enforcement failed", "rule_id", r.ID, "err", err)
		}
	}
}

// triggerContext builds the compact context snapshot stored with each entry.
func triggerContext(ec *smartvalue.Context) map[string]any {
	tc := map[string]any{
		"type":      string(ec.Trigger.Type),
		"timestamp": ec.Trigger.Timestamp.UTC().Format(time.RFC3339),
	}
	if ec.Event != nil {
		tc["eventId"] = ec.Event.ID
		tc["eventTitle"] = ec.Event.Title
	}
	if ec.Calendar != nil {
		tc["calendarId"] = ec.Calendar.ID
	}
	if len(ec.WebhookData) > 0 {
		tc["webhookData"] = ec.WebhookData
	}
	if ec.ExecutedBy != "" {
		tc["executedBy"] = ec.ExecutedBy
	}
	return tc
}

// Shutdown drains the dispatch pool gracefully.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
