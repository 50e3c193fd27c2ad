package smartvalue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// maxFlattenDepth caps recursion into webhook payloads.
const maxFlattenDepth = 10

// Resolve flattens the context into dotted smart-value keys. All values are
// rendered as strings; numeric comparison operators re-coerce at evaluation
// time. Resolution never fails; missing inputs simply produce fewer keys.
func Resolve(c *Context) map[string]string {
	out := make(map[string]string, 32)

	out["trigger.type"] = string(c.Trigger.Type)
	out["trigger.timestamp"] = c.Trigger.Timestamp.Format(time.RFC3339)
	out["trigger.date"] = c.Trigger.Timestamp.Format("2006-01-02")
	out["trigger.time"] = c.Trigger.Timestamp.Format("15:04")

	if c.Event != nil {
		resolveEvent(out, c)
	}
	if c.Calendar != nil {
		out["calendar.id"] = c.Calendar.ID
		out["calendar.name"] = c.Calendar.Name
		out["calendar.color"] = c.Calendar.Color
		out["calendar.ownerId"] = c.Calendar.OwnerID
	}
	if c.WebhookData != nil {
		flatten(out, "webhook.data", c.WebhookData, 0)
	}
	return out
}

func resolveEvent(out map[string]string, c *Context) {
	e := c.Event
	out["event.id"] = e.ID
	out["event.title"] = e.Title
	out["event.description"] = e.Description
	out["event.location"] = e.Location
	out["event.notes"] = e.Notes
	out["event.color"] = e.Color
	out["event.status"] = e.Status
	out["event.isAllDay"] = strconv.FormatBool(e.IsAllDay)
	out["event.startDate"] = e.StartDate
	out["event.endDate"] = e.EndDate
	out["event.startTime"] = e.StartTime
	out["event.endTime"] = e.EndTime

	total := e.DurationMinutes()
	out["event.duration"] = strconv.Itoa(total)
	out["event.durationHours"] = strconv.Itoa(total / 60)
	out["event.durationMinutes"] = strconv.Itoa(total % 60)

	if start, err := time.Parse("2006-01-02", e.StartDate); err == nil {
		out["event.year"] = start.Format("2006")
		out["event.month"] = start.Format("01")
		out["event.day"] = start.Format("02")
		out["event.dayOfWeek"] = start.Weekday().String()
		out["event.dayOfWeekShort"] = start.Format("Mon")
	}
}

// flatten walks a webhook payload recursively. Arrays are stored twice: as a
// JSON rendering of the whole array under the bare key, and, when every
// element is a primitive, as indexed keys key[0], key[1], etc.
func flatten(out map[string]string, prefix string, v any, depth int) {
	if depth > maxFlattenDepth {
		return
	}
	switch val := v.(type) {
	case map[string]any:
		for k, sub := range val {
			flatten(out, prefix+"."+k, sub, depth+1)
		}
	case []any:
		if raw, err := json.Marshal(val); err == nil {
			out[prefix] = string(raw)
		}
		if allPrimitive(val) {
			for i, el := range val {
				out[fmt.Sprintf("%s[%d]", prefix, i)] = formatScalar(el)
			}
		}
	default:
		out[prefix] = formatScalar(val)
	}
}

func allPrimitive(vals []any) bool {
	for _, v := range vals {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// formatScalar renders a primitive the way it would appear in JSON text,
// without quoting. JSON numbers arrive as float64; integral values drop the
// trailing ".0".
func formatScalar(v any) string {
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
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}
