package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Csepi/cal3-sub006/internal/action"
	"github.com/Csepi/cal3-sub006/internal/api"
	"github.com/Csepi/cal3-sub006/internal/audit"
	"github.com/Csepi/cal3-sub006/internal/engine"
	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/notify"
	"github.com/Csepi/cal3-sub006/internal/rule"
)

type testServer struct {
	http.Handler
	rules  *rule.MemoryStore
	events *event.MemoryStore
	audits *audit.MemoryStore
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	events := event.NewMemoryStore()
	events.PutCalendar(&event.Calendar{ID: "cal-1", OwnerID: "user-1", Name: "Work"})
	events.Put(&event.Event{
		ID: "ev-1", CalendarID: "cal-1", CreatorID: "user-1",
		Title: "Standup", Status: event.StatusConfirmed,
		StartDate: "2026-03-02", StartTime: "09:00",
		EndDate: "2026-03-02", EndTime: "09:15",
	})

	reg := action.NewRegistry()
	require.NoError(t, action.RegisterAll(reg, action.Deps{
		Events:    events,
		Calendars: events.Calendars(),
		Notifier:  notify.Discard(),
	}))
	reg.Freeze()

	rules := rule.NewMemoryStore()
	audits := audit.NewMemoryStore()
	log := slog.Default()
	retention := audit.NewRetention(audits, 1000, log)
	eng := engine.New(context.Background(), rules, reg, audits, retention,
		engine.Config{Workers: 1, QueueDepth: 16}, log)
	t.Cleanup(eng.Shutdown)

	return &testServer{
		Handler: api.New(rules, events, events.Calendars(), reg, eng, audits, retention, log),
		rules:   rules,
		events:  events,
		audits:  audits,
	}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func validPayload() map[string]any {
	return map[string]any{
		"name":    "color standups",
		"trigger": "event.created",
		"conditions": []map[string]any{
			{"field": "event.title", "operator": "contains", "value": "standup"},
		},
		"actions": []map[string]any{
			{"type": "set_color", "config": map[string]any{"color": "#00AA00"}},
		},
	}
}

func TestCreateRule(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[rule.Rule](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user-1", created.OwnerID)
	assert.True(t, created.Enabled)
	assert.Equal(t, rule.LogicAnd, created.ConditionLogic)
	require.Len(t, created.Conditions, 1)
	assert.NotEmpty(t, created.Conditions[0].ID)
	assert.Equal(t, created.ID, created.Conditions[0].RuleID)
}

func TestCreateRule_MissingUserHeader(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "", validPayload())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRule_ValidationError(t *testing.T) {
	s := newServer(t)
	payload := validPayload()
	payload["actions"] = []map[string]any{}
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one action")
}

func TestCreateRule_MalformedActionConfig(t *testing.T) {
	s := newServer(t)
	payload := validPayload()
	payload["actions"] = []map[string]any{
		{"type": "set_color", "config": map[string]any{"color": "banana"}},
	}
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "color")
}

func TestCreateRule_TokenedActionConfigAccepted(t *testing.T) {
	s := newServer(t)
	payload := validPayload()
	payload["actions"] = []map[string]any{
		{"type": "set_color", "config": map[string]any{"color": "{{webhook.data.color}}"}},
	}
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", payload)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUpdateRule_MalformedActionConfig(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))

	payload := validPayload()
	payload["actions"] = []map[string]any{
		{"type": "webhook", "config": map[string]any{"url": "not-a-url"}},
	}
	rec := s.do(t, http.MethodPut, "/api/v1/automation/rules/"+created.ID, "user-1", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "url")
}

func TestCreateRule_DuplicateName(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()).Code)
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
}

func TestCreateRule_WebhookGetsToken(t *testing.T) {
	s := newServer(t)
	payload := validPayload()
	payload["trigger"] = "webhook.incoming"
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[rule.Rule](t, rec)
	assert.NotEmpty(t, created.WebhookToken)
}

func TestGetRule_Ownership(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))

	rec := s.do(t, http.MethodGet, "/api/v1/automation/rules/"+created.ID, "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/automation/rules/"+created.ID, "user-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/automation/rules/missing", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRules_OwnerScoped(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()).Code)

	rec := s.do(t, http.MethodGet, "/api/v1/automation/rules", "user-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]rule.Rule](t, rec)
	assert.Empty(t, body["rules"])
}

func TestUpdateRule(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))

	payload := validPayload()
	payload["name"] = "renamed"
	enabled := false
	payload["enabled"] = enabled
	rec := s.do(t, http.MethodPut, "/api/v1/automation/rules/"+created.ID, "user-1", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[rule.Rule](t, rec)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.Enabled)
}

func TestDeleteRule_CleansAuditTrail(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))
	require.NoError(t, s.audits.Insert(context.Background(), &audit.Entry{
		ID: "e1", RuleID: created.ID, Status: audit.StatusSuccess, ExecutedAt: time.Now(),
	}))

	rec := s.do(t, http.MethodDelete, "/api/v1/automation/rules/"+created.ID, "user-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	n, err := s.audits.CountByRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecuteRule(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))

	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules/"+created.ID+"/execute", "user-1", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, created.ID, body["ruleId"])
	assert.EqualValues(t, 1, body["eventsConsidered"])
	assert.EqualValues(t, 1, body["queued"])
}

func webhookRule(t *testing.T, s *testServer) rule.Rule {
	t.Helper()
	payload := validPayload()
	payload["trigger"] = "webhook.incoming"
	payload["conditions"] = []map[string]any{
		{"field": "webhook.data.alert", "operator": "equals", "value": "fire"},
	}
	payload["actions"] = []map[string]any{
		{"type": "send_notification", "config": map[string]any{"message": "alert: {{webhook.data.alert}}"}},
	}
	rec := s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[rule.Rule](t, rec)
}

func TestIncomingWebhook_Success(t *testing.T) {
	s := newServer(t)
	rl := webhookRule(t, s)

	rec := s.do(t, http.MethodPost, "/api/v1/automation/webhook/"+rl.WebhookToken, "",
		map[string]any{"alert": "fire"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, rl.ID, body["ruleId"])
}

func TestIncomingWebhook_ConditionsNotMet(t *testing.T) {
	s := newServer(t)
	rl := webhookRule(t, s)

	rec := s.do(t, http.MethodPost, "/api/v1/automation/webhook/"+rl.WebhookToken, "",
		map[string]any{"alert": "drill"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "skipped")
}

func TestIncomingWebhook_UnknownToken(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/automation/webhook/no-such-token", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid webhook token")
}

func TestIncomingWebhook_DisabledRule(t *testing.T) {
	s := newServer(t)
	rl := webhookRule(t, s)
	stored, err := s.rules.Get(context.Background(), rl.ID)
	require.NoError(t, err)
	stored.Enabled = false
	require.NoError(t, s.rules.Update(context.Background(), stored))

	rec := s.do(t, http.MethodPost, "/api/v1/automation/webhook/"+rl.WebhookToken, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "rule is disabled")
}

func TestIncomingWebhook_SecretMismatchHidesRule(t *testing.T) {
	s := newServer(t)
	rl := webhookRule(t, s)
	stored, err := s.rules.Get(context.Background(), rl.ID)
	require.NoError(t, err)
	stored.WebhookSecret = "s3cret"
	require.NoError(t, s.rules.Update(context.Background(), stored))

	rec := s.do(t, http.MethodPost, "/api/v1/automation/webhook/"+rl.WebhookToken, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid webhook token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/automation/webhook/"+rl.WebhookToken, nil)
	req.Header.Set("X-Webhook-Secret", "s3cret")
	okRec := httptest.NewRecorder()
	s.ServeHTTP(okRec, req)
	assert.Equal(t, http.StatusOK, okRec.Code)
}

func TestIncomingWebhook_BadBody(t *testing.T) {
	s := newServer(t)
	rl := webhookRule(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/automation/webhook/"+rl.WebhookToken,
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAuditEntries(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, st := range []audit.Status{audit.StatusSuccess, audit.StatusFailure, audit.StatusSuccess} {
		require.NoError(t, s.audits.Insert(context.Background(), &audit.Entry{
			ID: string(rune('a' + i)), RuleID: created.ID, Status: st,
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := s.do(t, http.MethodGet,
		"/api/v1/automation/rules/"+created.ID+"/audit?status=success&limit=1", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Entries []audit.Entry `json:"entries"`
		Total   int           `json:"total"`
		Limit   int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Len(t, body.Entries, 1)
	assert.Equal(t, 1, body.Limit)
}

func TestListAuditEntries_BadFilter(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))

	rec := s.do(t, http.MethodGet,
		"/api/v1/automation/rules/"+created.ID+"/audit?status=exploded", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet,
		"/api/v1/automation/rules/"+created.ID+"/audit?from=yesterday", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAuditEntry_CrossOwnerHidden(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))
	require.NoError(t, s.audits.Insert(context.Background(), &audit.Entry{
		ID: "e1", RuleID: created.ID, Status: audit.StatusSuccess, ExecutedAt: time.Now(),
	}))

	rec := s.do(t, http.MethodGet, "/api/v1/automation/audit/e1", "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/automation/audit/e1", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditStats(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))
	require.NoError(t, s.audits.Insert(context.Background(), &audit.Entry{
		ID: "e1", RuleID: created.ID, Status: audit.StatusSuccess,
		DurationMs: 12, ExecutedAt: time.Now(),
	}))

	rec := s.do(t, http.MethodGet,
		"/api/v1/automation/rules/"+created.ID+"/audit/stats", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1000, body["cap"])
	assert.Equal(t, false, body["nearCapacity"])
	assert.EqualValues(t, 1, body["count"])
}

func TestEnforceAudit(t *testing.T) {
	s := newServer(t)
	created := decode[rule.Rule](t,
		s.do(t, http.MethodPost, "/api/v1/automation/rules", "user-1", validPayload()))

	rec := s.do(t, http.MethodPost,
		"/api/v1/automation/rules/"+created.ID+"/audit/enforce", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 0, body["deleted"])
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}
