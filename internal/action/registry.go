package action

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// Registry is the capability table mapping action types to executors. It is
// populated once at process start and frozen before any rule execution
// begins; lookups after Freeze need no locking discipline from callers.
type Registry struct {
	mu        sync.RWMutex
	frozen    bool
	executors map[rule.ActionType]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[rule.ActionType]Executor)}
}

// Register adds an executor. A duplicate type or a registration after Freeze
// is a deployment error and fails so startup can halt.
func (r *Registry) Register(e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("action registry: register %q after freeze", e.Type())
	}
	if _, exists := r.executors[e.Type()]; exists {
		return fmt.Errorf("action registry: duplicate executor for type %q", e.Type())
	}
	r.executors[e.Type()] = e
	return nil
}

// Freeze marks the registry read-only for the remainder of the process.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the executor for the given type.
func (r *Registry) Get(t rule.ActionType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("no executor registered for action type %q", t)
	}
	return e, nil
}

// Has reports whether an executor is registered for the given type.
func (r *Registry) Has(t rule.ActionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[t]
	return ok
}

// ValidateConfigs checks each action's stored configuration against its
// registered executor, so malformed configs are rejected at rule write time.
// A configuration carrying smart-value tokens is deferred: it can only be
// validated after interpolation, where a bad resolved value becomes that
// action's failure result.
func (r *Registry) ValidateConfigs(actions []rule.Action) error {
	var errs []string
	for i, a := range actions {
		exec, err := r.Get(a.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("actions[%d]: %s", i, err))
			continue
		}
		if configHasTokens(a.Config) {
			continue
		}
		if err := exec.Validate(a.Config); err != nil {
			errs = append(errs, fmt.Sprintf("actions[%d]: %s", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("action validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// configHasTokens walks a config value looking for interpolation tokens.
func configHasTokens(v any) bool {
	switch val := v.(type) {
	case string:
		return smartvalue.HasToken(val)
	case map[string]any:
		for _, sub := range val {
			if configHasTokens(sub) {
				return true
			}
		}
	case []any:
		for _, sub := range val {
			if configHasTokens(sub) {
				return true
			}
		}
	}
	return false
}

// Types returns all registered action types, sorted.
func (r *Registry) Types() []rule.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rule.ActionType, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
