// Package smartvalue flattens execution context into addressable "smart
// values" and interpolates them into strings and configuration maps.
package smartvalue

import (
	"time"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
)

// Context carries everything one rule execution can reference: the trigger
// metadata, the target event and its calendar when present, and the raw
// webhook payload for webhook-initiated runs.
type Context struct {
	Trigger     Trigger
	Event       *event.Event
	Calendar    *event.Calendar
	WebhookData map[string]any

	// ExecutedBy identifies the user behind a manual "run now"; empty for
	// automatic triggers.
	ExecutedBy string
}

// Trigger describes what initiated the execution.
type Trigger struct {
	Type      rule.TriggerType
	Timestamp time.Time
}

// NewContext builds a Context stamped with the current time.
func NewContext(t rule.TriggerType, ev *event.Event, cal *event.Calendar) *Context {
	return &Context{
		Trigger: Trigger{Type: t, Timestamp: time.Now()},
		Event:   ev,
		Calendar: cal,
	}
}

// Nested renders the context as a nested map, the shape walked by
// segment-by-segment path lookups.
func (c *Context) Nested() map[string]any {
	out := map[string]any{
		"trigger": map[string]any{
			"type":      string(c.Trigger.Type),
			"timestamp": c.Trigger.Timestamp.Format(time.RFC3339),
			"date":      c.Trigger.Timestamp.Format("2006-01-02"),
			"time":      c.Trigger.Timestamp.Format("15:04"),
		},
	}
	if c.Event != nil {
		out["event"] = c.Event.Snapshot()
	}
	if c.Calendar != nil {
		out["calendar"] = map[string]any{
			"id":      c.Calendar.ID,
			"name":    c.Calendar.Name,
			"color":   c.Calendar.Color,
			"ownerId": c.Calendar.OwnerID,
		}
	}
	if c.WebhookData != nil {
		out["webhook"] = map[string]any{"data": c.WebhookData}
	}
	return out
}
