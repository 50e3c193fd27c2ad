package event

import (
	"context"
	"errors"
)

// Store errors.
var (
	ErrNotFound         = errors.New("event not found")
	ErrCalendarNotFound = errors.New("calendar not found")
)

// Store reads and mutates events.
// Update applies a partial field map; unknown keys are ignored by the
// implementation. The engine never owns event schema or validation.
type Store interface {
	FindByID(ctx context.Context, id string) (*Event, error)
	FindByOwnerAndDate(ctx context.Context, ownerID, date string) ([]*Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Event, error)
	Update(ctx context.Context, id string, fields map[string]any) (*Event, error)
}

// CalendarStore resolves calendars.
type CalendarStore interface {
	FindByID(ctx context.Context, id string) (*Calendar, error)
}
