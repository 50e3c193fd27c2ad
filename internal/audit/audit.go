// Package audit persists one record per rule execution attempt and enforces
// the per-rule retention cap.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/Csepi/cal3-sub006/internal/action"
	"github.com/Csepi/cal3-sub006/internal/condition"
	"github.com/Csepi/cal3-sub006/internal/rule"
)

// Status is the overall outcome of one rule execution.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailure        Status = "failure"
	StatusSkipped        Status = "skipped"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartialSuccess, StatusFailure, StatusSkipped:
		return true
	}
	return false
}

// Entry is one audit record. An entry is written at the end of every
// execution attempt, including failures and skips.
type Entry struct {
	ID             string             `json:"id"`
	RuleID         string             `json:"ruleId"`
	EventID        string             `json:"eventId,omitempty"` // empty for webhook runs without an event
	TriggerType    rule.TriggerType   `json:"triggerType"`
	TriggerContext map[string]any     `json:"triggerContext,omitempty"`
	Conditions     *condition.Outcome `json:"conditionsResult,omitempty"`
	ActionResults  []action.Result    `json:"actionResults,omitempty"`
	Status         Status             `json:"status"`
	Error          string             `json:"error,omitempty"`
	DurationMs     int64              `json:"durationMs"`
	ExecutedBy     string             `json:"executedBy,omitempty"` // empty for automatic triggers
	ExecutedAt     time.Time          `json:"executedAt"`
}

// Stats aggregates a rule's execution history.
type Stats struct {
	Total          int            `json:"total"`
	ByStatus       map[Status]int `json:"byStatus"`
	AvgDurationMs  float64        `json:"avgDurationMs"`
	LastExecutedAt *time.Time     `json:"lastExecutedAt,omitempty"`
}

// Filter narrows audit queries.
type Filter struct {
	Status Status
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// ErrNotFound is returned for unknown audit entry IDs.
var ErrNotFound = errors.New("audit entry not found")

// Store persists audit entries. Each Insert is a single independent write;
// concurrent executions of the same rule may insert concurrently.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)

	// ListByRule returns one page of entries, newest first, plus the total
	// count matching the filter.
	ListByRule(ctx context.Context, ruleID string, f Filter) ([]*Entry, int, error)

	CountByRule(ctx context.Context, ruleID string) (int, error)

	// OldestIDs returns up to n entry IDs for the rule, oldest first by
	// executedAt.
	OldestIDs(ctx context.Context, ruleID string, n int) ([]string, error)

	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// DeleteByRule removes the whole trail when a rule is deleted.
	DeleteByRule(ctx context.Context, ruleID string) error

	// RuleIDs lists every rule that has at least one entry.
	RuleIDs(ctx context.Context) ([]string, error)

	Stats(ctx context.Context, ruleID string) (*Stats, error)
}
