package smartvalue

import (
	"regexp"
	"strings"
)

// Token syntaxes: {{path}} and ${path}.
var (
	bracePattern  = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	dollarPattern = regexp.MustCompile(`\$\{\s*([^{}]+?)\s*\}`)
)

// Interpolate replaces {{path}} and ${path} tokens in text with smart values
// from the context. Paths resolve first against the flattened key map, then
// by walking the nested context segment by segment. Unresolved tokens are
// left verbatim; interpolation never fails.
func Interpolate(text string, c *Context) string {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "${") {
		return text
	}
	flat := Resolve(c)
	nested := c.Nested()
	replace := func(match, path string) string {
		if v, ok := flat[path]; ok {
			return v
		}
		if v, ok := walkPath(nested, strings.Split(path, ".")); ok {
			return formatScalar(v)
		}
		return match
	}
	out := bracePattern.ReplaceAllStringFunc(text, func(m string) string {
		return replace(m, bracePattern.FindStringSubmatch(m)[1])
	})
	out = dollarPattern.ReplaceAllStringFunc(out, func(m string) string {
		return replace(m, dollarPattern.FindStringSubmatch(m)[1])
	})
	return out
}

// HasToken reports whether s carries an interpolation token. Callers use it
// to tell static strings from per-execution dynamic ones.
func HasToken(s string) bool {
	return bracePattern.MatchString(s) || dollarPattern.MatchString(s)
}

// InterpolateDeep applies Interpolate recursively through nested maps and
// slices, returning a new structure. Non-string leaves pass through untouched.
func InterpolateDeep(v any, c *Context) any {
	switch val := v.(type) {
	case string:
		return Interpolate(val, c)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = InterpolateDeep(sub, c)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = InterpolateDeep(sub, c)
		}
		return out
	default:
		return v
	}
}

// InterpolateConfig is InterpolateDeep specialized to action configuration maps.
func InterpolateConfig(cfg map[string]any, c *Context) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	return InterpolateDeep(cfg, c).(map[string]any)
}

// walkPath descends a nested map one segment at a time.
func walkPath(v any, path []string) (any, bool) {
	cur := v
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	switch cur.(type) {
	case map[string]any, []any:
		return nil, false // only scalar leaves interpolate
	}
	return cur, true
}
