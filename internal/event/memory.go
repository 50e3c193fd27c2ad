package event

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store and CalendarStore used by tests and by
// the demo wiring when no external calendar backend is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string]*Event
	calendars map[string]*Calendar
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]*Event),
		calendars: make(map[string]*Calendar),
	}
}

// Put inserts or replaces an event.
func (s *MemoryStore) Put(e *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e.Clone()
}

// PutCalendar inserts or replaces a calendar.
func (s *MemoryStore) PutCalendar(c *Calendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.calendars[c.ID] = &cp
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (s *MemoryStore) FindByOwnerAndDate(ctx context.Context, ownerID, date string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for _, e := range s.events {
		if !s.ownedBy(e, ownerID) {
			continue
		}
		if e.StartDate == date || e.EndDate == date {
			out = append(out, e.Clone())
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for _, e := range s.events {
		if s.ownedBy(e, ownerID) {
			out = append(out, e.Clone())
		}
	}
	sortEvents(out)
	return out, nil
}

// ownedBy matches either the event creator or the owner of its calendar.
// Caller must hold the read lock.
func (s *MemoryStore) ownedBy(e *Event, ownerID string) bool {
	if e.CreatorID == ownerID {
		return true
	}
	if cal, ok := s.calendars[e.CalendarID]; ok && cal.OwnerID == ownerID {
		return true
	}
	return false
}

func (s *MemoryStore) Update(_ context.Context, id string, fields map[string]any) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for k, v := range fields {
		switch k {
		case "title":
			e.Title, _ = v.(string)
		case "description":
			e.Description, _ = v.(string)
		case "location":
			e.Location, _ = v.(string)
		case "notes":
			e.Notes, _ = v.(string)
		case "color":
			e.Color, _ = v.(string)
		case "status":
			e.Status, _ = v.(string)
		case "calendarId":
			e.CalendarID, _ = v.(string)
		case "tags":
			if tags, ok := v.([]string); ok {
				e.Tags = append([]string(nil), tags...)
			}
		case "tasks":
			if tasks, ok := v.([]Task); ok {
				e.Tasks = append([]Task(nil), tasks...)
			}
		}
	}
	e.UpdatedAt = time.Now()
	return e.Clone(), nil
}

func (s *MemoryStore) FindCalendarByID(_ context.Context, id string) (*Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calendars[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCalendarNotFound, id)
	}
	cp := *c
	return &cp, nil
}

// Calendars adapts MemoryStore to the CalendarStore interface.
func (s *MemoryStore) Calendars() CalendarStore {
	return calendarView{s}
}

type calendarView struct{ s *MemoryStore }

func (v calendarView) FindByID(ctx context.Context, id string) (*Calendar, error) {
	return v.s.FindCalendarByID(ctx, id)
}

func sortEvents(evs []*Event) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].StartDate != evs[j].StartDate {
			return evs[i].StartDate < evs[j].StartDate
		}
		if evs[i].StartTime != evs[j].StartTime {
			return evs[i].StartTime < evs[j].StartTime
		}
		return evs[i].ID < evs[j].ID
	})
}
