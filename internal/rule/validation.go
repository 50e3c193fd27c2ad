package rule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Write-time limits on a single rule.
const (
	MaxConditions = 10
	MaxActions    = 5
)

// Validate checks a rule's structural invariants before it is persisted:
//   - name and owner are required
//   - trigger type and condition logic are known
//   - at least one action, at most MaxActions; at most MaxConditions conditions
//   - every condition operator is known and regex patterns compile
//   - every action has a known type
//
// Per-type action config schemas are validated separately against the
// executor registry, so malformed configs are rejected at the same write.
func Validate(r *Rule) error {
	var errs []string

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, "name is required")
	}
	if r.OwnerID == "" {
		errs = append(errs, "owner is required")
	}
	if !r.Trigger.Valid() {
		errs = append(errs, fmt.Sprintf("unknown trigger type %q", r.Trigger))
	}
	if !r.ConditionLogic.Valid() {
		errs = append(errs, fmt.Sprintf("condition logic must be AND or OR, got %q", r.ConditionLogic))
	}
	if len(r.Conditions) > MaxConditions {
		errs = append(errs, fmt.Sprintf("at most %d conditions allowed, got %d", MaxConditions, len(r.Conditions)))
	}
	if len(r.Actions) == 0 {
		errs = append(errs, "at least one action is required")
	}
	if len(r.Actions) > MaxActions {
		errs = append(errs, fmt.Sprintf("at most %d actions allowed, got %d", MaxActions, len(r.Actions)))
	}

	for i := range r.Conditions {
		c := &r.Conditions[i]
		c.Operator = NormalizeOperator(c.Operator)
		if strings.TrimSpace(c.Field) == "" {
			errs = append(errs, fmt.Sprintf("conditions[%d]: field is required", i))
		}
		if !c.Operator.Valid() {
			errs = append(errs, fmt.Sprintf("conditions[%d]: unknown operator %q", i, c.Operator))
			continue
		}
		if c.Operator == OpMatches {
			if _, err := regexp.Compile(c.Value); err != nil {
				errs = append(errs, fmt.Sprintf("conditions[%d]: invalid regex %q: %s", i, c.Value, err))
			}
		}
	}

	for i, a := range r.Actions {
		switch a.Type {
		case ActionSetColor, ActionAddTag, ActionUpdateTitle, ActionUpdateDescription,
			ActionCancelEvent, ActionMoveCalendar, ActionCreateTask,
			ActionSendNotification, ActionWebhook:
		default:
			errs = append(errs, fmt.Sprintf("actions[%d]: unknown action type %q", i, a.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("rule validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SortConditions orders conditions by their stable sort key.
func SortConditions(cs []Condition) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Order < cs[j].Order })
}

// SortActions orders actions into execution order.
func SortActions(as []Action) {
	sort.SliceStable(as, func(i, j int) bool { return as[i].Order < as[j].Order })
}
