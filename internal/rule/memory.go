package rule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a map-backed Store for tests and single-process demo runs.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]*Rule)}
}

func (s *MemoryStore) Create(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[r.ID]; exists {
		return fmt.Errorf("rule %s already exists", r.ID)
	}
	for _, existing := range s.rules {
		if existing.OwnerID == r.OwnerID && strings.EqualFold(existing.Name, r.Name) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		}
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) GetByWebhookToken(_ context.Context, token string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.WebhookToken != "" && r.WebhookToken == token {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: token", ErrNotFound)
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Rule
	for _, r := range s.rules {
		if r.OwnerID == ownerID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListEnabledByTrigger(_ context.Context, triggers ...TriggerType) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[TriggerType]struct{}, len(triggers))
	for _, t := range triggers {
		want[t] = struct{}{}
	}
	var out []*Rule
	for _, r := range s.rules {
		if !r.Enabled {
			continue
		}
		if _, ok := want[r.Trigger]; ok {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	for id, other := range s.rules {
		if id != r.ID && other.OwnerID == r.OwnerID && strings.EqualFold(other.Name, r.Name) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		}
	}
	r.CreatedAt = existing.CreatedAt
	r.ExecutionCount = existing.ExecutionCount
	r.LastExecutedAt = existing.LastExecutedAt
	r.UpdatedAt = time.Now()
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) RecordExecution(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.ExecutionCount++
	r.LastExecutedAt = &at
	return nil
}
