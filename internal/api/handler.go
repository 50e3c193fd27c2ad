// Package api is the HTTP surface of the automation engine: webhook ingress,
// rule CRUD, manual execution and the audit query endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Csepi/cal3-sub006/internal/action"
	"github.com/Csepi/cal3-sub006/internal/audit"
	"github.com/Csepi/cal3-sub006/internal/engine"
	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/metrics"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// userHeader carries the caller's user ID. Authentication itself happens in
// front of this service; the header is trusted here.
const userHeader = "X-User-ID"

// Handler holds all HTTP handler dependencies.
type Handler struct {
	rules     rule.Store
	events    event.Store
	calendars event.CalendarStore
	registry  *action.Registry
	eng       *engine.Engine
	audits    audit.Store
	retention *audit.Retention
	log       *slog.Logger
}

// New creates an HTTP handler and registers all routes.
func New(rules rule.Store, events event.Store, calendars event.CalendarStore, registry *action.Registry, eng *engine.Engine, audits audit.Store, retention *audit.Retention, log *slog.Logger) http.Handler {
	h := &Handler{
		rules:     rules,
		events:    events,
		calendars: calendars,
		registry:  registry,
		eng:       eng,
		audits:    audits,
		retention: retention,
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1/automation", func(r chi.Router) {
		r.Post("/webhook/{token}", h.incomingWebhook)

		r.Route("/rules", func(r chi.Router) {
			r.Post("/", h.createRule)
			r.Get("/", h.listRules)
			r.Route("/{ruleID}", func(r chi.Router) {
				r.Get("/", h.getRule)
				r.Put("/", h.updateRule)
				r.Delete("/", h.deleteRule)
				r.Post("/execute", h.executeRule)
				r.Get("/audit", h.listAuditEntries)
				r.Get("/audit/stats", h.auditStats)
				r.Post("/audit/enforce", h.enforceAudit)
			})
		})

		r.Get("/audit/{entryID}", h.getAuditEntry)
	})

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// webhookResponse never carries internal error detail beyond a generic
// message; operators read the audit trail instead.
type webhookResponse struct {
	Success bool   `json:"success"`
	RuleID  string `json:"ruleId,omitempty"`
	Message string `json:"message"`
}

// POST /api/v1/automation/webhook/{token}
func (h *Handler) incomingWebhook(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	rl, err := h.rules.GetByWebhookToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusNotFound, webhookResponse{Message: "invalid webhook token"})
		return
	}
	if rl.WebhookSecret != "" && r.Header.Get("X-Webhook-Secret") != rl.WebhookSecret {
		writeJSON(w, http.StatusNotFound, webhookResponse{Message: "invalid webhook token"})
		return
	}
	if !rl.Enabled {
		writeJSON(w, http.StatusBadRequest, webhookResponse{RuleID: rl.ID, Message: "rule is disabled"})
		return
	}
	if rl.Trigger != rule.TriggerWebhookIncoming {
		writeJSON(w, http.StatusBadRequest, webhookResponse{RuleID: rl.ID, Message: "rule does not accept webhooks"})
		return
	}

	var payload map[string]any
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, webhookResponse{RuleID: rl.ID, Message: "request body must be a JSON object"})
			return
		}
	}

	ec := smartvalue.NewContext(rule.TriggerWebhookIncoming, nil, nil)
	ec.WebhookData = payload

	entry := h.eng.Run(r.Context(), rl, ec, engine.ExecutedBySystem)
	writeJSON(w, http.StatusOK, webhookResponse{
		Success: entry.Status == audit.StatusSuccess,
		RuleID:  rl.ID,
		Message: fmt.Sprintf("rule executed with status %s", entry.Status),
	})
}

// GET /healthz always returns 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz returns 503 if the dispatch queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
