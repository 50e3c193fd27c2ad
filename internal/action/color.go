package action

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

var colorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

// SetColor changes the target event's color.
type SetColor struct {
	events event.Store
}

func NewSetColor(events event.Store) *SetColor { return &SetColor{events: events} }

func (*SetColor) Type() rule.ActionType { return rule.ActionSetColor }

func (*SetColor) Validate(cfg map[string]any) error {
	color := cfgString(cfg, "color")
	if color == "" {
		return fmt.Errorf("set_color: color is required")
	}
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("set_color: color %q must be a hex color like #RRGGBB", color)
	}
	return nil
}

func (x *SetColor) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if err := x.Validate(cfg); err != nil {
		return fail(a, "%s", err)
	}
	if ec.Event == nil {
		return fail(a, "no event available to set color on")
	}
	color := cfgString(cfg, "color")
	previous := ec.Event.Color
	updated, err := x.events.Update(ctx, ec.Event.ID, map[string]any{"color": color})
	if err != nil {
		return fail(a, "update event color: %s", err)
	}
	ec.Event = updated
	return succeed(a, map[string]any{
		"previousColor": previous,
		"newColor":      color,
	})
}
