// Package event holds the calendar entities the engine reads and mutates.
// The engine does not own their persistence or validation; Store and
// CalendarStore are the narrow boundary to the external calendar system.
package event

import "time"

// Status values for an event.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// Event is a calendar event. Dates are YYYY-MM-DD strings and times are HH:MM
// strings in the calendar's local time; all-day events carry empty times.
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendarId"`
	CreatorID   string    `json:"creatorId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Notes       string    `json:"notes"`
	Color       string    `json:"color"`
	Status      string    `json:"status"`
	IsAllDay    bool      `json:"isAllDay"`
	StartDate   string    `json:"startDate"`
	EndDate     string    `json:"endDate"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Tags        []string  `json:"tags"`
	Tasks       []Task    `json:"tasks"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Task is a structured to-do attached to an event.
type Task struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	DueMinutesBefore int    `json:"dueMinutesBefore,omitempty"`
}

// Calendar groups events under one owner.
type Calendar struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

// DurationMinutes computes the event length from its HH:MM time strings.
// Returns 0 when either time is missing (all-day events are not computed as
// minutes) or unparseable. Events crossing midnight wrap forward.
func (e *Event) DurationMinutes() int {
	start, ok := parseClock(e.StartTime)
	if !ok {
		return 0
	}
	end, ok := parseClock(e.EndTime)
	if !ok {
		return 0
	}
	d := end - start
	if d < 0 {
		d += 24 * 60
	}
	return d
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// Snapshot renders the event as a nested map for generic dotted-path lookup.
func (e *Event) Snapshot() map[string]any {
	tags := make([]any, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = t
	}
	tasks := make([]any, len(e.Tasks))
	for i, t := range e.Tasks {
		tasks[i] = map[string]any{
			"title":            t.Title,
			"description":      t.Description,
			"dueMinutesBefore": t.DueMinutesBefore,
		}
	}
	return map[string]any{
		"id":          e.ID,
		"calendarId":  e.CalendarID,
		"creatorId":   e.CreatorID,
		"title":       e.Title,
		"description": e.Description,
		"location":    e.Location,
		"notes":       e.Notes,
		"color":       e.Color,
		"status":      e.Status,
		"isAllDay":    e.IsAllDay,
		"startDate":   e.StartDate,
		"endDate":     e.EndDate,
		"startTime":   e.StartTime,
		"endTime":     e.EndTime,
		"tags":        tags,
		"tasks":       tasks,
	}
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	cp := *e
	cp.Tags = append([]string(nil), e.Tags...)
	cp.Tasks = append([]Task(nil), e.Tasks...)
	return &cp
}
