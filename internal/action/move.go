package action

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// MoveCalendar moves the target event to another calendar. The target must
// exist; moving to the event's current calendar is a successful no-op.
type MoveCalendar struct {
	events    event.Store
	calendars event.CalendarStore
}

func NewMoveCalendar(events event.Store, calendars event.CalendarStore) *MoveCalendar {
	return &MoveCalendar{events: events, calendars: calendars}
}

func (*MoveCalendar) Type() rule.ActionType { return rule.ActionMoveCalendar }

func (*MoveCalendar) Validate(cfg map[string]any) error {
	if targetCalendarID(cfg) == "" {
		return fmt.Errorf("move_calendar: targetCalendarId is required")
	}
	return nil
}

func (x *MoveCalendar) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if err := x.Validate(cfg); err != nil {
		return fail(a, "%s", err)
	}
	if ec.Event == nil {
		return fail(a, "no event available to move")
	}

	target := targetCalendarID(cfg)
	if ec.Event.CalendarID == target {
		return succeed(a, map[string]any{
			"calendarId": target,
			"changed":    false,
		})
	}

	cal, err := x.calendars.FindByID(ctx, target)
	if err != nil {
		return fail(a, "target calendar %s: %s", target, err)
	}

	previous := ec.Event.CalendarID
	updated, err := x.events.Update(ctx, ec.Event.ID, map[string]any{"calendarId": cal.ID})
	if err != nil {
		return fail(a, "move event: %s", err)
	}
	ec.Event = updated
	ec.Calendar = cal
	return succeed(a, map[string]any{
		"previousCalendarId": previous,
		"calendarId":         cal.ID,
		"changed":            true,
	})
}

// targetCalendarID accepts both string and numeric calendar identifiers;
// numbers are normalized to their decimal string form.
func targetCalendarID(cfg map[string]any) string {
	switch v := cfg["targetCalendarId"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}
