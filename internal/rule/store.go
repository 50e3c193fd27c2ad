package rule

import (
	"context"
	"errors"
	"time"
)

// Store errors. SQL and in-memory implementations wrap these so callers can
// match with errors.Is regardless of backend.
var (
	ErrNotFound      = errors.New("rule not found")
	ErrDuplicateName = errors.New("rule name already exists for owner")
)

// Store persists rules together with their condition and action sets.
// Update replaces the full condition/action sets atomically so partial states
// are never visible mid-update.
type Store interface {
	Create(ctx context.Context, r *Rule) error
	Get(ctx context.Context, id string) (*Rule, error)
	GetByWebhookToken(ctx context.Context, token string) (*Rule, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Rule, error)
	ListEnabledByTrigger(ctx context.Context, triggers ...TriggerType) ([]*Rule, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id string) error

	// RecordExecution bumps ExecutionCount and sets LastExecutedAt.
	RecordExecution(ctx context.Context, id string, at time.Time) error
}
