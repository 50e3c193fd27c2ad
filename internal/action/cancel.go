package action

import (
	"context"
	"fmt"
	"time"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// CancelEvent sets the target event's status to cancelled. An optional reason
// is appended to the event notes as a timestamped annotation line.
type CancelEvent struct {
	events event.Store
}

func NewCancelEvent(events event.Store) *CancelEvent { return &CancelEvent{events: events} }

func (*CancelEvent) Type() rule.ActionType { return rule.ActionCancelEvent }

func (*CancelEvent) Validate(map[string]any) error {
	// Reason is optional; there is nothing to reject.
	return nil
}

func (x *CancelEvent) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if ec.Event == nil {
		return fail(a, "no event available to cancel")
	}

	previous := ec.Event.Status
	fields := map[string]any{"status": event.StatusCancelled}
	if reason := cfgString(cfg, "reason"); reason != "" {
		annotation := fmt.Sprintf("[cancelled %s] %s", time.Now().Format(time.RFC3339), reason)
		notes := ec.Event.Notes
		if notes != "" {
			notes += "\n"
		}
		fields["notes"] = notes + annotation
	}

	updated, err := x.events.Update(ctx, ec.Event.ID, fields)
	if err != nil {
		return fail(a, "cancel event: %s", err)
	}
	ec.Event = updated
	return succeed(a, map[string]any{
		"previousStatus": previous,
		"newStatus":      event.StatusCancelled,
	})
}
