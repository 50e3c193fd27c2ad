package rule

import (
	"strconv"
	"time"
)

// TriggerType identifies the source that initiates rule evaluation.
type TriggerType string

const (
	TriggerEventCreated     TriggerType = "event.created"
	TriggerEventUpdated     TriggerType = "event.updated"
	TriggerEventDeleted     TriggerType = "event.deleted"
	TriggerEventStartsIn    TriggerType = "event.starts_in"
	TriggerEventEndsIn      TriggerType = "event.ends_in"
	TriggerCalendarImported TriggerType = "calendar.imported"
	TriggerScheduledTime    TriggerType = "time.scheduled"
	TriggerWebhookIncoming  TriggerType = "webhook.incoming"
)

// TimeBasedTriggers are the trigger types polled by the scheduler tick.
func TimeBasedTriggers() []TriggerType {
	return []TriggerType{TriggerScheduledTime, TriggerEventStartsIn, TriggerEventEndsIn}
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerEventCreated, TriggerEventUpdated, TriggerEventDeleted,
		TriggerEventStartsIn, TriggerEventEndsIn, TriggerCalendarImported,
		TriggerScheduledTime, TriggerWebhookIncoming:
		return true
	}
	return false
}

// TimeBased reports whether t is evaluated by the scheduler rather than a
// lifecycle hook or webhook.
func (t TriggerType) TimeBased() bool {
	switch t {
	case TriggerScheduledTime, TriggerEventStartsIn, TriggerEventEndsIn:
		return true
	}
	return false
}

// ConditionLogic is the flat AND/OR combinator applied across a rule's conditions.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// Valid reports whether l is AND or OR.
func (l ConditionLogic) Valid() bool {
	return l == LogicAnd || l == LogicOr
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpMatches            Operator = "matches"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIsTrue             Operator = "is_true"
	OpIsFalse            Operator = "is_false"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
)

// NormalizeOperator maps legacy operator aliases to their canonical form.
func NormalizeOperator(op Operator) Operator {
	switch op {
	case "in_list":
		return OpIn
	case "not_in_list":
		return OpNotIn
	case "greater_than_or_equals":
		return OpGreaterThanOrEqual
	case "less_than_or_equals":
		return OpLessThanOrEqual
	}
	return op
}

// Valid reports whether op is a known (canonical) operator.
func (op Operator) Valid() bool {
	switch op {
	case OpContains, OpNotContains, OpEquals, OpNotEquals, OpStartsWith,
		OpEndsWith, OpMatches, OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual, OpIsTrue, OpIsFalse, OpIsEmpty,
		OpIsNotEmpty, OpIn, OpNotIn:
		return true
	}
	return false
}

// ActionType identifies one registered action executor.
type ActionType string

const (
	ActionSetColor          ActionType = "set_color"
	ActionAddTag            ActionType = "add_tag"
	ActionUpdateTitle       ActionType = "update_title"
	ActionUpdateDescription ActionType = "update_description"
	ActionCancelEvent       ActionType = "cancel_event"
	ActionMoveCalendar      ActionType = "move_calendar"
	ActionCreateTask        ActionType = "create_task"
	ActionSendNotification  ActionType = "send_notification"
	ActionWebhook           ActionType = "webhook"
)

// Rule is a stored automation definition: trigger + conditions + actions.
type Rule struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"ownerId"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Trigger        TriggerType    `json:"trigger"`
	TriggerConfig  map[string]any `json:"triggerConfig,omitempty"`
	Enabled        bool           `json:"enabled"`
	ConditionLogic ConditionLogic `json:"conditionLogic"`
	Conditions     []Condition    `json:"conditions"`
	Actions        []Action       `json:"actions"`
	WebhookToken   string         `json:"webhookToken,omitempty"`
	WebhookSecret  string         `json:"-"`
	LastExecutedAt *time.Time     `json:"lastExecutedAt,omitempty"`
	ExecutionCount int64          `json:"executionCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Condition belongs to exactly one rule. GroupID and LogicOperator are stored
// for forward compatibility with nested boolean logic but are not evaluated;
// composition is the flat rule-level ConditionLogic only.
type Condition struct {
	ID            string         `json:"id"`
	RuleID        string         `json:"ruleId"`
	Field         string         `json:"field"`
	Operator      Operator       `json:"operator"`
	Value         string         `json:"value"`
	GroupID       string         `json:"groupId,omitempty"`       // reserved, unused
	LogicOperator ConditionLogic `json:"logicOperator,omitempty"` // reserved, unused
	Order         int            `json:"order"`
}

// Action belongs to exactly one rule. Actions run strictly sequentially in
// ascending Order because later actions may depend on earlier mutations.
type Action struct {
	ID     string         `json:"id"`
	RuleID string         `json:"ruleId"`
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config"`
	Order  int            `json:"order"`
}

// TriggerMinutes reads the "minutes" key from TriggerConfig, falling back to
// def when absent or malformed. Used by the starts-in/ends-in triggers.
func (r *Rule) TriggerMinutes(def int) int {
	if r.TriggerConfig == nil {
		return def
	}
	switch v := r.TriggerConfig["minutes"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Clone returns a deep copy of the rule, detaching condition/action slices and
// config maps from the original.
func (r *Rule) Clone() *Rule {
	cp := *r
	if r.TriggerConfig != nil {
		cp.TriggerConfig = cloneMap(r.TriggerConfig)
	}
	if r.LastExecutedAt != nil {
		at := *r.LastExecutedAt
		cp.LastExecutedAt = &at
	}
	cp.Conditions = make([]Condition, len(r.Conditions))
	copy(cp.Conditions, r.Conditions)
	cp.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		cp.Actions[i] = a
		if a.Config != nil {
			cp.Actions[i].Config = cloneMap(a.Config)
		}
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = cloneMap(sub)
			continue
		}
		out[k] = v
	}
	return out
}
