package action

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/notify"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

func fixture(t *testing.T) (*event.MemoryStore, *smartvalue.Context) {
	t.Helper()
	store := event.NewMemoryStore()
	store.PutCalendar(&event.Calendar{ID: "cal-1", OwnerID: "user-1", Name: "Work"})
	store.PutCalendar(&event.Calendar{ID: "cal-2", OwnerID: "user-1", Name: "Archive"})
	ev := &event.Event{
		ID:         "ev-1",
		CalendarID: "cal-1",
		CreatorID:  "user-1",
		Title:      "Standup",
		Status:     event.StatusConfirmed,
		Tags:       []string{"recurring"},
		StartDate:  "2026-03-02",
		EndDate:    "2026-03-02",
		StartTime:  "09:00",
		EndTime:    "09:15",
	}
	store.Put(ev)
	ec := smartvalue.NewContext(rule.TriggerEventCreated, ev.Clone(), &event.Calendar{ID: "cal-1", OwnerID: "user-1", Name: "Work"})
	return store, ec
}

func act(typ rule.ActionType, cfg map[string]any) rule.Action {
	return rule.Action{ID: "a-1", RuleID: "r-1", Type: typ, Config: cfg}
}

func TestSetColor(t *testing.T) {
	store, ec := fixture(t)
	x := NewSetColor(store)

	res := x.Execute(context.Background(), act(rule.ActionSetColor, map[string]any{"color": "#FF8800"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "#FF8800", res.Data["newColor"])
	assert.Equal(t, "#FF8800", ec.Event.Color)

	stored, err := store.FindByID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "#FF8800", stored.Color)
}

func TestSetColor_RejectsBadColor(t *testing.T) {
	store, ec := fixture(t)
	x := NewSetColor(store)

	for _, bad := range []string{"", "red", "#12345", "FF8800"} {
		res := x.Execute(context.Background(), act(rule.ActionSetColor, map[string]any{"color": bad}), ec)
		assert.False(t, res.Success, "color %q should be rejected", bad)
	}
	// Short hex form is allowed.
	res := x.Execute(context.Background(), act(rule.ActionSetColor, map[string]any{"color": "#abc"}), ec)
	assert.True(t, res.Success, res.Error)
}

func TestAddTag_DeduplicatesCaseInsensitive(t *testing.T) {
	store, ec := fixture(t)
	x := NewAddTag(store)

	res := x.Execute(context.Background(), act(rule.ActionAddTag, map[string]any{"tag": "Recurring, team, team"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"team"}, res.Data["addedTags"])
	assert.Equal(t, []string{"recurring", "team"}, ec.Event.Tags)
}

func TestAddTag_Interpolates(t *testing.T) {
	store, ec := fixture(t)
	x := NewAddTag(store)

	res := x.Execute(context.Background(), act(rule.ActionAddTag, map[string]any{"tag": "from-{{trigger.type}}"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, ec.Event.Tags, "from-event.created")
}

func TestUpdateTitle_Modes(t *testing.T) {
	cases := []struct {
		name string
		cfg  map[string]any
		want string
	}{
		{name: "replace default", cfg: map[string]any{"text": "Renamed"}, want: "Renamed"},
		{name: "append with space", cfg: map[string]any{"text": "(moved)", "mode": "append"}, want: "Standup (moved)"},
		{name: "prepend with space", cfg: map[string]any{"text": "[A]", "mode": "prepend"}, want: "[A] Standup"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, ec := fixture(t)
			x := NewUpdateTitle(store)
			res := x.Execute(context.Background(), act(rule.ActionUpdateTitle, tc.cfg), ec)
			require.True(t, res.Success, res.Error)
			assert.Equal(t, tc.want, ec.Event.Title)
		})
	}
}

func TestUpdateDescription_AppendUsesNewline(t *testing.T) {
	store, ec := fixture(t)
	ec.Event.Description = "line one"
	store.Put(ec.Event)

	x := NewUpdateDescription(store)
	res := x.Execute(context.Background(), act(rule.ActionUpdateDescription,
		map[string]any{"text": "line two", "mode": "append"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "line one\nline two", ec.Event.Description)
}

func TestUpdateText_AppendToEmptySkipsSeparator(t *testing.T) {
	store, ec := fixture(t)
	x := NewUpdateDescription(store)

	res := x.Execute(context.Background(), act(rule.ActionUpdateDescription,
		map[string]any{"text": "only line", "mode": "append"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "only line", ec.Event.Description)
}

func TestCancelEvent_AnnotatesReason(t *testing.T) {
	store, ec := fixture(t)
	x := NewCancelEvent(store)

	res := x.Execute(context.Background(), act(rule.ActionCancelEvent, map[string]any{"reason": "room double-booked"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, event.StatusConfirmed, res.Data["previousStatus"])
	assert.Equal(t, event.StatusCancelled, ec.Event.Status)
	assert.True(t, strings.HasPrefix(ec.Event.Notes, "[cancelled "))
	assert.True(t, strings.HasSuffix(ec.Event.Notes, "room double-booked"))
}

func TestMoveCalendar(t *testing.T) {
	store, ec := fixture(t)
	x := NewMoveCalendar(store, store.Calendars())

	res := x.Execute(context.Background(), act(rule.ActionMoveCalendar, map[string]any{"targetCalendarId": "cal-2"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, true, res.Data["changed"])
	assert.Equal(t, "cal-2", ec.Event.CalendarID)
	assert.Equal(t, "Archive", ec.Calendar.Name)
}

func TestMoveCalendar_SameCalendarIsNoop(t *testing.T) {
	store, ec := fixture(t)
	x := NewMoveCalendar(store, store.Calendars())

	res := x.Execute(context.Background(), act(rule.ActionMoveCalendar, map[string]any{"targetCalendarId": "cal-1"}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, false, res.Data["changed"])
}

func TestMoveCalendar_NumericTarget(t *testing.T) {
	store, ec := fixture(t)
	store.PutCalendar(&event.Calendar{ID: "42", OwnerID: "user-1", Name: "Numbered"})
	x := NewMoveCalendar(store, store.Calendars())

	res := x.Execute(context.Background(), act(rule.ActionMoveCalendar, map[string]any{"targetCalendarId": float64(42)}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "42", ec.Event.CalendarID)
}

func TestMoveCalendar_UnknownTargetFails(t *testing.T) {
	store, ec := fixture(t)
	x := NewMoveCalendar(store, store.Calendars())

	res := x.Execute(context.Background(), act(rule.ActionMoveCalendar, map[string]any{"targetCalendarId": "nope"}), ec)
	assert.False(t, res.Success)
}

func TestCreateTask(t *testing.T) {
	store, ec := fixture(t)
	x := NewCreateTask(store)

	res := x.Execute(context.Background(), act(rule.ActionCreateTask,
		map[string]any{"title": "Prep notes for {{event.title}}", "dueMinutesBefore": float64(30)}), ec)
	require.True(t, res.Success, res.Error)
	require.Len(t, ec.Event.Tasks, 1)
	assert.Equal(t, "Prep notes for Standup", ec.Event.Tasks[0].Title)
	assert.Equal(t, 30, ec.Event.Tasks[0].DueMinutesBefore)
}

func TestCreateTask_Validation(t *testing.T) {
	store, ec := fixture(t)
	x := NewCreateTask(store)

	res := x.Execute(context.Background(), act(rule.ActionCreateTask, map[string]any{}), ec)
	assert.False(t, res.Success)

	res = x.Execute(context.Background(), act(rule.ActionCreateTask,
		map[string]any{"title": "x", "dueMinutesBefore": "soon"}), ec)
	assert.False(t, res.Success)
}

type captureNotifier struct {
	sent []notify.Notification
}

func (c *captureNotifier) Send(_ context.Context, n notify.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestSendNotification_RecipientResolution(t *testing.T) {
	_, ec := fixture(t)
	sink := &captureNotifier{}
	x := NewSendNotification(sink)

	res := x.Execute(context.Background(), act(rule.ActionSendNotification, map[string]any{
		"message":              "heads up about {{event.title}}",
		"recipientIds":         []any{"user-9", "user-1"},
		"includeCalendarOwner": true,
	}), ec)
	require.True(t, res.Success, res.Error)
	require.Len(t, sink.sent, 1)
	// user-1 is both explicit and the creator and calendar owner; listed once.
	assert.Equal(t, []string{"user-9", "user-1"}, sink.sent[0].RecipientIDs)
	assert.Equal(t, "heads up about Standup", sink.sent[0].Message)
	assert.Equal(t, notify.PriorityNormal, sink.sent[0].Priority)
}

func TestSendNotification_ZeroRecipientsFails(t *testing.T) {
	ec := smartvalue.NewContext(rule.TriggerWebhookIncoming, nil, nil)
	x := NewSendNotification(notify.Discard())

	res := x.Execute(context.Background(), act(rule.ActionSendNotification, map[string]any{
		"message": "nobody home",
	}), ec)
	assert.False(t, res.Success)
}

func TestSendNotification_BadPriority(t *testing.T) {
	_, ec := fixture(t)
	x := NewSendNotification(notify.Discard())

	res := x.Execute(context.Background(), act(rule.ActionSendNotification, map[string]any{
		"message":  "x",
		"priority": "urgent",
	}), ec)
	assert.False(t, res.Success)
}

func TestWebhook_ValidateBeforeNetwork(t *testing.T) {
	_, ec := fixture(t)
	x := NewWebhook(nil)

	for _, bad := range []string{"", "not-a-url", "ftp://example.com/x", "/relative"} {
		res := x.Execute(context.Background(), act(rule.ActionWebhook, map[string]any{"url": bad}), ec)
		assert.False(t, res.Success, "url %q should be rejected", bad)
	}
}

func TestWebhook_PostsInterpolatedPayload(t *testing.T) {
	var got map[string]any
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer srv.Close()

	_, ec := fixture(t)
	x := NewWebhook(srv.Client())

	res := x.Execute(context.Background(), act(rule.ActionWebhook, map[string]any{
		"url":     srv.URL,
		"payload": `{"title":"{{event.title}}"}`,
		"headers": map[string]any{"X-Token": "secret"},
	}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Standup", got["title"])
	assert.Equal(t, "secret", header)
	assert.Equal(t, 200, res.Data["statusCode"])
	assert.Equal(t, map[string]any{"accepted": true}, res.Data["response"])
}

func TestWebhook_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, ec := fixture(t)
	x := NewWebhook(srv.Client())

	res := x.Execute(context.Background(), act(rule.ActionWebhook, map[string]any{"url": srv.URL}), ec)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "502")
}

func TestWebhook_EventDataPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	_, ec := fixture(t)
	x := NewWebhook(srv.Client())

	res := x.Execute(context.Background(), act(rule.ActionWebhook, map[string]any{
		"url":              srv.URL,
		"includeEventData": true,
	}), ec)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "event.created", got["trigger"])
	evData, ok := got["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Standup", evData["title"])
}
