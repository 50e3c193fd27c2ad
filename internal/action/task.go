package action

import (
	"context"
	"fmt"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// CreateTask appends a structured task entry to the target event's task list.
type CreateTask struct {
	events event.Store
}

func NewCreateTask(events event.Store) *CreateTask { return &CreateTask{events: events} }

func (*CreateTask) Type() rule.ActionType { return rule.ActionCreateTask }

func (*CreateTask) Validate(cfg map[string]any) error {
	if cfgString(cfg, "title") == "" {
		return fmt.Errorf("create_task: title is required")
	}
	if _, present := cfg["dueMinutesBefore"]; present {
		if _, ok := cfgInt(cfg, "dueMinutesBefore"); !ok {
			return fmt.Errorf("create_task: dueMinutesBefore must be numeric")
		}
	}
	return nil
}

func (x *CreateTask) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if err := x.Validate(cfg); err != nil {
		return fail(a, "%s", err)
	}
	if ec.Event == nil {
		return fail(a, "no event available to attach a task to")
	}

	task := event.Task{
		Title:       cfgString(cfg, "title"),
		Description: cfgString(cfg, "description"),
	}
	if due, ok := cfgInt(cfg, "dueMinutesBefore"); ok {
		task.DueMinutesBefore = due
	}

	tasks := append(append([]event.Task(nil), ec.Event.Tasks...), task)
	updated, err := x.events.Update(ctx, ec.Event.ID, map[string]any{"tasks": tasks})
	if err != nil {
		return fail(a, "attach task: %s", err)
	}
	ec.Event = updated
	return succeed(a, map[string]any{
		"task":      map[string]any{"title": task.Title, "description": task.Description, "dueMinutesBefore": task.DueMinutesBefore},
		"taskCount": len(tasks),
	})
}
