package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps audit entries in memory, for tests and demo runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Insert(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.ID]; exists {
		return fmt.Errorf("audit entry %s already exists", e.ID)
	}
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) ListByRule(_ context.Context, ruleID string, f Filter) ([]*Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Entry
	for _, e := range s.entries {
		if e.RuleID != ruleID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && e.ExecutedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.ExecutedAt.After(f.To) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	// Newest first; ID breaks ties for stable pagination.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ExecutedAt.Equal(matched[j].ExecutedAt) {
			return matched[i].ExecutedAt.After(matched[j].ExecutedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) CountByRule(_ context.Context, ruleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.RuleID == ruleID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) OldestIDs(_ context.Context, ruleID string, n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Entry
	for _, e := range s.entries {
		if e.RuleID == ruleID {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ExecutedAt.Equal(matched[j].ExecutedAt) {
			return matched[i].ExecutedAt.Before(matched[j].ExecutedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if n < len(matched) {
		matched = matched[:n]
	}
	ids := make([]string, len(matched))
	for i, e := range matched {
		ids[i] = e.ID
	}
	return ids, nil
}

func (s *MemoryStore) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) DeleteByRule(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.RuleID == ruleID {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryStore) RuleIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, e := range s.entries {
		if _, dup := seen[e.RuleID]; !dup {
			seen[e.RuleID] = struct{}{}
			out = append(out, e.RuleID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context, ruleID string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &Stats{ByStatus: make(map[Status]int)}
	var totalDuration int64
	for _, e := range s.entries {
		if e.RuleID != ruleID {
			continue
		}
		st.Total++
		st.ByStatus[e.Status]++
		totalDuration += e.DurationMs
		if st.LastExecutedAt == nil || e.ExecutedAt.After(*st.LastExecutedAt) {
			at := e.ExecutedAt
			st.LastExecutedAt = &at
		}
	}
	if st.Total > 0 {
		st.AvgDurationMs = float64(totalDuration) / float64(st.Total)
	}
	return st, nil
}
