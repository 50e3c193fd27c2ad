package smartvalue

import (
	"strings"
	"testing"
	"time"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
)

func testContext() *Context {
	c := NewContext(rule.TriggerEventCreated, &event.Event{
		ID:         "ev-1",
		CalendarID: "cal-1",
		CreatorID:  "user-1",
		Title:      "Sprint Review",
		Status:     "confirmed",
		StartDate:  "2026-03-02", // a Monday
		EndDate:    "2026-03-02",
		StartTime:  "14:00",
		EndTime:    "15:15",
	}, &event.Calendar{ID: "cal-1", OwnerID: "user-1", Name: "Work", Color: "#336699"})
	c.Trigger.Timestamp = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	return c
}

func TestResolve_EventFields(t *testing.T) {
	got := Resolve(testContext())

	cases := map[string]string{
		"trigger.type":          "event.created",
		"trigger.date":          "2026-03-02",
		"trigger.time":          "13:00",
		"event.title":           "Sprint Review",
		"event.duration":        "75",
		"event.durationHours":   "1",
		"event.durationMinutes": "15",
		"event.year":            "2026",
		"event.month":           "03",
		"event.day":             "02",
		"event.dayOfWeek":       "Monday",
		"event.dayOfWeekShort":  "Mon",
		"event.isAllDay":        "false",
		"calendar.name":         "Work",
		"calendar.color":        "#336699",
	}
	for key, want := range cases {
		if got[key] != want {
			t.Errorf("Resolve()[%q] = %q, want %q", key, got[key], want)
		}
	}
}

func TestResolve_MidnightWrapDuration(t *testing.T) {
	c := NewContext(rule.TriggerEventCreated, &event.Event{
		StartDate: "2026-03-02",
		EndDate:   "2026-03-03",
		StartTime: "23:30",
		EndTime:   "00:30",
	}, nil)
	if got := Resolve(c)["event.duration"]; got != "60" {
		t.Errorf("wrap duration = %q, want 60", got)
	}
}

func TestResolve_WebhookFlatten(t *testing.T) {
	c := NewContext(rule.TriggerWebhookIncoming, nil, nil)
	c.WebhookData = map[string]any{
		"alert": map[string]any{
			"severity": "high",
			"count":    float64(3),
		},
		"tags":  []any{"infra", "paging"},
		"hosts": []any{map[string]any{"name": "db-1"}},
	}
	got := Resolve(c)

	cases := map[string]string{
		"webhook.data.alert.severity": "high",
		"webhook.data.alert.count":    "3",
		"webhook.data.tags":           `["infra","paging"]`,
		"webhook.data.tags[0]":        "infra",
		"webhook.data.tags[1]":        "paging",
	}
	for key, want := range cases {
		if got[key] != want {
			t.Errorf("Resolve()[%q] = %q, want %q", key, got[key], want)
		}
	}
	// Arrays of objects keep only the JSON rendering, no indexed keys.
	if _, ok := got["webhook.data.hosts[0]"]; ok {
		t.Error("object array elements must not produce indexed keys")
	}
	if got["webhook.data.hosts"] != `[{"name":"db-1"}]` {
		t.Errorf("object array JSON = %q", got["webhook.data.hosts"])
	}
}

func TestResolve_DepthCap(t *testing.T) {
	// Build a payload nested past the cap; the leaf must be dropped, not loop.
	leaf := map[string]any{"deep": "value"}
	cur := leaf
	for i := 0; i < maxFlattenDepth+2; i++ {
		cur = map[string]any{"n": cur}
	}
	c := NewContext(rule.TriggerWebhookIncoming, nil, nil)
	c.WebhookData = cur

	got := Resolve(c)
	for k := range got {
		if strings.HasSuffix(k, ".deep") {
			t.Errorf("over-deep key %q should have been dropped", k)
		}
	}
}
