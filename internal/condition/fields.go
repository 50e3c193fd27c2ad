package condition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// knownEventField maps the supported field enum to extractors over the
// context. Paths outside this table fall back to the generic snapshot walk.
var knownEventField = map[string]func(c *smartvalue.Context) string{
	"event.title":       func(c *smartvalue.Context) string { return c.Event.Title },
	"event.description": func(c *smartvalue.Context) string { return c.Event.Description },
	"event.location":    func(c *smartvalue.Context) string { return c.Event.Location },
	"event.notes":       func(c *smartvalue.Context) string { return c.Event.Notes },
	"event.color":       func(c *smartvalue.Context) string { return c.Event.Color },
	"event.status":      func(c *smartvalue.Context) string { return c.Event.Status },
	"event.isAllDay":    func(c *smartvalue.Context) string { return strconv.FormatBool(c.Event.IsAllDay) },
	"event.duration":    func(c *smartvalue.Context) string { return strconv.Itoa(c.Event.DurationMinutes()) },
	"calendar.id": func(c *smartvalue.Context) string {
		if c.Calendar != nil {
			return c.Calendar.ID
		}
		if c.Event != nil {
			return c.Event.CalendarID
		}
		return ""
	},
	"calendar.name": func(c *smartvalue.Context) string {
		if c.Calendar != nil {
			return c.Calendar.Name
		}
		return ""
	},
}

// resolveField extracts the actual value for a condition field from the
// context. webhook.data.* paths walk the webhook payload and error when the
// payload or any segment is missing; other fields first consult the known
// field table, then walk the event snapshot dotted-path style.
func resolveField(field string, c *smartvalue.Context) (string, error) {
	if strings.HasPrefix(field, "webhook.data.") {
		if c.WebhookData == nil {
			return "", fmt.Errorf("field %q requires webhook data, none present", field)
		}
		return walkWebhook(c.WebhookData, strings.Split(strings.TrimPrefix(field, "webhook.data."), "."))
	}

	if fn, ok := knownEventField[field]; ok {
		if strings.HasPrefix(field, "event.") && c.Event == nil {
			return "", fmt.Errorf("field %q requires an event, none present", field)
		}
		if strings.HasPrefix(field, "calendar.") && c.Event == nil && c.Calendar == nil {
			return "", fmt.Errorf("field %q requires an event or calendar, none present", field)
		}
		return fn(c), nil
	}

	path := strings.Split(field, ".")
	if path[0] == "event" {
		if c.Event == nil {
			return "", fmt.Errorf("field %q requires an event, none present", field)
		}
		return walkSnapshot(c.Event.Snapshot(), path[1:], field)
	}
	return "", fmt.Errorf("unsupported field %q", field)
}

func walkWebhook(data map[string]any, path []string) (string, error) {
	var cur any = data
	for i, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("webhook path segment %q is not an object", strings.Join(path[:i], "."))
		}
		cur, ok = m[seg]
		if !ok {
			return "", fmt.Errorf("webhook path segment %q not found", seg)
		}
	}
	return stringify(cur), nil
}

func walkSnapshot(snapshot map[string]any, path []string, field string) (string, error) {
	var cur any = snapshot
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("field %q: segment %q is not an object", field, seg)
		}
		cur, ok = m[seg]
		if !ok {
			return "", fmt.Errorf("field %q: segment %q not found", field, seg)
		}
	}
	return stringify(cur), nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		if raw, err := json.Marshal(val); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", val)
	}
}
