package action

import (
	"context"
	"fmt"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// Text replacement modes.
const (
	ModeReplace = "replace"
	ModeAppend  = "append"
	ModePrepend = "prepend"
)

// UpdateText backs both the update_title and update_description executors;
// they differ only in the mutated field and the separator inserted when
// appending or prepending to non-empty content (space for titles, newline for
// descriptions).
type UpdateText struct {
	events    event.Store
	typ       rule.ActionType
	field     string
	separator string
}

func NewUpdateTitle(events event.Store) *UpdateText {
	return &UpdateText{events: events, typ: rule.ActionUpdateTitle, field: "title", separator: " "}
}

func NewUpdateDescription(events event.Store) *UpdateText {
	return &UpdateText{events: events, typ: rule.ActionUpdateDescription, field: "description", separator: "\n"}
}

func (x *UpdateText) Type() rule.ActionType { return x.typ }

func (x *UpdateText) Validate(cfg map[string]any) error {
	if cfgString(cfg, "text") == "" {
		return fmt.Errorf("%s: text is required", x.typ)
	}
	switch mode := cfgString(cfg, "mode"); mode {
	case "", ModeReplace, ModeAppend, ModePrepend:
	default:
		return fmt.Errorf("%s: mode must be replace, append or prepend, got %q", x.typ, mode)
	}
	return nil
}

func (x *UpdateText) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if err := x.Validate(cfg); err != nil {
		return fail(a, "%s", err)
	}
	if ec.Event == nil {
		return fail(a, "no event available to update %s on", x.field)
	}

	current := ec.Event.Title
	if x.field == "description" {
		current = ec.Event.Description
	}

	text := cfgString(cfg, "text")
	mode := cfgString(cfg, "mode")
	if mode == "" {
		mode = ModeReplace
	}

	next := text
	switch mode {
	case ModeAppend:
		if current != "" {
			next = current + x.separator + text
		}
	case ModePrepend:
		if current != "" {
			next = text + x.separator + current
		}
	}

	updated, err := x.events.Update(ctx, ec.Event.ID, map[string]any{x.field: next})
	if err != nil {
		return fail(a, "update event %s: %s", x.field, err)
	}
	ec.Event = updated
	return succeed(a, map[string]any{
		"previous": current,
		"new":      next,
		"mode":     mode,
	})
}
