package action

import (
	"context"
	"fmt"

	"github.com/Csepi/cal3-sub006/internal/notify"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// SendNotification dispatches a message through the external notification
// collaborator. Recipients are the explicitly configured IDs plus, by
// default, the event creator, and optionally the calendar owner.
type SendNotification struct {
	notifier notify.Notifier
}

func NewSendNotification(notifier notify.Notifier) *SendNotification {
	return &SendNotification{notifier: notifier}
}

func (*SendNotification) Type() rule.ActionType { return rule.ActionSendNotification }

func (*SendNotification) Validate(cfg map[string]any) error {
	if cfgString(cfg, "message") == "" {
		return fmt.Errorf("send_notification: message is required")
	}
	if p := cfgString(cfg, "priority"); p != "" && !notify.Priority(p).Valid() {
		return fmt.Errorf("send_notification: priority must be low, normal or high, got %q", p)
	}
	return nil
}

func (x *SendNotification) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if err := x.Validate(cfg); err != nil {
		return fail(a, "%s", err)
	}

	priority := notify.Priority(cfgString(cfg, "priority"))
	if priority == "" {
		priority = notify.PriorityNormal
	}

	seen := make(map[string]struct{})
	var recipients []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	for _, id := range cfgStringSlice(cfg, "recipientIds") {
		add(id)
	}
	if cfgBool(cfg, "includeEventCreator", true) && ec.Event != nil {
		add(ec.Event.CreatorID)
	}
	if cfgBool(cfg, "includeCalendarOwner", false) && ec.Calendar != nil {
		add(ec.Calendar.OwnerID)
	}
	if len(recipients) == 0 {
		return fail(a, "no notification recipients resolved")
	}

	n := notify.Notification{
		RecipientIDs: recipients,
		Title:        cfgString(cfg, "title"),
		Message:      cfgString(cfg, "message"),
		Priority:     priority,
	}
	if err := x.notifier.Send(ctx, n); err != nil {
		return fail(a, "dispatch notification: %s", err)
	}
	return succeed(a, map[string]any{
		"recipients": recipients,
		"priority":   string(priority),
	})
}
