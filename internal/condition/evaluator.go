package condition

import (
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// Evaluation is the trace of one condition check.
type Evaluation struct {
	ConditionID string        `json:"conditionId"`
	Field       string        `json:"field"`
	Operator    rule.Operator `json:"operator"`
	Expected    string        `json:"expectedValue"`
	Actual      string        `json:"actualValue"`
	Passed      bool          `json:"passed"`
	Error       string        `json:"error,omitempty"`
}

// Outcome is the combined verdict plus the ordered per-condition trace.
type Outcome struct {
	Passed      bool         `json:"passed"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Evaluate checks every condition of r against the context in stored order
// and combines the results with the rule-level AND/OR logic. A rule with no
// conditions always passes. A field-resolution or operator error marks that
// single condition failed with an error message; it never aborts the rest of
// the evaluation.
//
// The per-condition GroupID/LogicOperator fields are intentionally ignored:
// composition is flat until nested grouping ships.
func Evaluate(r *rule.Rule, c *smartvalue.Context) *Outcome {
	conditions := make([]rule.Condition, len(r.Conditions))
	copy(conditions, r.Conditions)
	rule.SortConditions(conditions)

	out := &Outcome{Evaluations: make([]Evaluation, 0, len(conditions))}
	if len(conditions) == 0 {
		out.Passed = true
		return out
	}

	passedCount := 0
	for _, cond := range conditions {
		ev := Evaluation{
			ConditionID: cond.ID,
			Field:       cond.Field,
			Operator:    cond.Operator,
			Expected:    cond.Value,
		}
		actual, err := resolveField(cond.Field, c)
		if err != nil {
			ev.Error = err.Error()
			out.Evaluations = append(out.Evaluations, ev)
			continue
		}
		ev.Actual = actual
		passed, err := apply(cond.Operator, actual, cond.Value)
		if err != nil {
			ev.Error = err.Error()
			out.Evaluations = append(out.Evaluations, ev)
			continue
		}
		ev.Passed = passed
		if passed {
			passedCount++
		}
		out.Evaluations = append(out.Evaluations, ev)
	}

	if r.ConditionLogic == rule.LogicOr {
		out.Passed = passedCount > 0
	} else {
		out.Passed = passedCount == len(conditions)
	}
	return out
}
