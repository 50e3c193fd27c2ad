// Package action implements the pluggable action executors and the
// capability registry they are dispatched through.
package action

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// Result is the uniform envelope every executor returns. Runtime problems
// become Success=false with an error message; executors never panic through
// the engine.
type Result struct {
	ActionID   string          `json:"actionId"`
	ActionType rule.ActionType `json:"actionType"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Data       map[string]any  `json:"data,omitempty"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// Executor is the capability all action implementations satisfy.
//
// Execute receives the stored action; implementations interpolate the action
// configuration through the smart-value resolver, validate the interpolated
// configuration, then apply the effect.
type Executor interface {
	Type() rule.ActionType
	Validate(cfg map[string]any) error
	Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result
}

func succeed(a rule.Action, data map[string]any) *Result {
	return &Result{
		ActionID:   a.ID,
		ActionType: a.Type,
		Success:    true,
		Data:       data,
		ExecutedAt: time.Now(),
	}
}

func fail(a rule.Action, format string, args ...any) *Result {
	return &Result{
		ActionID:   a.ID,
		ActionType: a.Type,
		Success:    false,
		Error:      fmt.Sprintf(format, args...),
		ExecutedAt: time.Now(),
	}
}

// Config accessors shared by executors. Configs arrive as decoded JSON, so
// numbers may be float64 or string depending on how the rule was authored.

func cfgString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func cfgBool(cfg map[string]any, key string, def bool) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func cfgInt(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func cfgStringSlice(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// interp interpolates smart-value tokens through an action's stored
// configuration. Executors validate the interpolated copy, never the template.
func interp(a rule.Action, ec *smartvalue.Context) map[string]any {
	return smartvalue.InterpolateConfig(a.Config, ec)
}
