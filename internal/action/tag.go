package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// AddTag appends one or more tags to the target event, skipping tags the
// event already carries.
type AddTag struct {
	events event.Store
}

func NewAddTag(events event.Store) *AddTag { return &AddTag{events: events} }

func (*AddTag) Type() rule.ActionType { return rule.ActionAddTag }

func (*AddTag) Validate(cfg map[string]any) error {
	if len(splitTags(cfgString(cfg, "tag"))) == 0 {
		return fmt.Errorf("add_tag: tag is required")
	}
	return nil
}

func (x *AddTag) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if err := x.Validate(cfg); err != nil {
		return fail(a, "%s", err)
	}
	if ec.Event == nil {
		return fail(a, "no event available to tag")
	}

	existing := make(map[string]struct{}, len(ec.Event.Tags))
	for _, t := range ec.Event.Tags {
		existing[strings.ToLower(t)] = struct{}{}
	}
	var added []string
	tags := append([]string(nil), ec.Event.Tags...)
	for _, t := range splitTags(cfgString(cfg, "tag")) {
		if _, dup := existing[strings.ToLower(t)]; dup {
			continue
		}
		existing[strings.ToLower(t)] = struct{}{}
		tags = append(tags, t)
		added = append(added, t)
	}

	if len(added) > 0 {
		updated, err := x.events.Update(ctx, ec.Event.ID, map[string]any{"tags": tags})
		if err != nil {
			return fail(a, "update event tags: %s", err)
		}
		ec.Event = updated
	}
	return succeed(a, map[string]any{
		"addedTags": added,
		"tags":      tags,
	})
}

// splitTags splits a comma-separated tag list, trimming blanks.
func splitTags(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
