package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// ruleRequest is the write payload for create/update. Server-assigned fields
// (IDs, owner, counters, timestamps) are ignored if present in the body.
type ruleRequest struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Trigger        rule.TriggerType    `json:"trigger"`
	TriggerConfig  map[string]any      `json:"triggerConfig"`
	Enabled        *bool               `json:"enabled"`
	ConditionLogic rule.ConditionLogic `json:"conditionLogic"`
	Conditions     []rule.Condition    `json:"conditions"`
	Actions        []rule.Action       `json:"actions"`
}

// owner extracts the caller's user ID; empty means the request is rejected.
func owner(r *http.Request) string {
	return r.Header.Get(userHeader)
}

// loadOwned fetches a rule and enforces ownership. Writes the error response
// itself and returns nil when the caller should stop.
func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) *rule.Rule {
	userID := owner(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, userHeader+" header is required")
		return nil
	}
	rl, err := h.rules.Get(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		if errors.Is(err, rule.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
		} else {
			h.log.Error("rule lookup failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return nil
	}
	if rl.OwnerID != userID {
		writeError(w, http.StatusForbidden, "rule belongs to another user")
		return nil
	}
	return rl
}

// POST /api/v1/automation/rules
func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	userID := owner(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, userHeader+" header is required")
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	now := time.Now().UTC()
	rl := &rule.Rule{
		ID:             uuid.NewString(),
		OwnerID:        userID,
		Name:           req.Name,
		Description:    req.Description,
		Trigger:        req.Trigger,
		TriggerConfig:  req.TriggerConfig,
		Enabled:        req.Enabled == nil || *req.Enabled,
		ConditionLogic: req.ConditionLogic,
		Conditions:     req.Conditions,
		Actions:        req.Actions,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if rl.ConditionLogic == "" {
		rl.ConditionLogic = rule.LogicAnd
	}
	stampChildren(rl)
	if rl.Trigger == rule.TriggerWebhookIncoming {
		rl.WebhookToken = uuid.NewString()
	}

	if err := rule.Validate(rl); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.registry.ValidateConfigs(rl.Actions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.rules.Create(r.Context(), rl); err != nil {
		if errors.Is(err, rule.ErrDuplicateName) {
			writeError(w, http.StatusBadRequest, "a rule with this name already exists")
			return
		}
		h.log.Error("rule create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, rl)
}

// GET /api/v1/automation/rules
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	userID := owner(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, userHeader+" header is required")
		return
	}
	rules, err := h.rules.ListByOwner(r.Context(), userID)
	if err != nil {
		h.log.Error("rule list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// GET /api/v1/automation/rules/{ruleID}
func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	rl := h.loadOwned(w, r)
	if rl == nil {
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

// PUT /api/v1/automation/rules/{ruleID}
func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	rl := h.loadOwned(w, r)
	if rl == nil {
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	rl.Name = req.Name
	rl.Description = req.Description
	rl.Trigger = req.Trigger
	rl.TriggerConfig = req.TriggerConfig
	if req.Enabled != nil {
		rl.Enabled = *req.Enabled
	}
	if req.ConditionLogic != "" {
		rl.ConditionLogic = req.ConditionLogic
	}
	rl.Conditions = req.Conditions
	rl.Actions = req.Actions
	rl.UpdatedAt = time.Now().UTC()
	stampChildren(rl)
	if rl.Trigger == rule.TriggerWebhookIncoming && rl.WebhookToken == "" {
		rl.WebhookToken = uuid.NewString()
	}

	if err := rule.Validate(rl); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.registry.ValidateConfigs(rl.Actions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.rules.Update(r.Context(), rl); err != nil {
		switch {
		case errors.Is(err, rule.ErrNotFound):
			writeError(w, http.StatusNotFound, "rule not found")
		case errors.Is(err, rule.ErrDuplicateName):
			writeError(w, http.StatusBadRequest, "a rule with this name already exists")
		default:
			h.log.Error("rule update failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

// DELETE /api/v1/automation/rules/{ruleID}
func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	rl := h.loadOwned(w, r)
	if rl == nil {
		return
	}
	if err := h.rules.Delete(r.Context(), rl.ID); err != nil {
		h.log.Error("rule delete failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.audits.DeleteByRule(r.Context(), rl.ID); err != nil {
		h.log.Warn("audit trail cleanup failed", "rule_id", rl.ID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/automation/rules/{ruleID}/execute
//
// Re-evaluates the rule against every event the owner currently has. The
// executions are queued; the response reports only how many events were
// considered.
func (h *Handler) executeRule(w http.ResponseWriter, r *http.Request) {
	rl := h.loadOwned(w, r)
	if rl == nil {
		return
	}
	userID := owner(r)

	events, err := h.events.ListByOwner(r.Context(), rl.OwnerID)
	if err != nil {
		h.log.Error("event list failed", "owner_id", rl.OwnerID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	queued := 0
	for _, ev := range events {
		ec := smartvalue.NewContext(rl.Trigger, ev.Clone(), h.lookupCalendar(r, ev.CalendarID))
		ec.ExecutedBy = userID
		if h.eng.Dispatch(rl, ec, userID) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"ruleId":           rl.ID,
		"eventsConsidered": len(events),
		"queued":           queued,
	})
}

func (h *Handler) lookupCalendar(r *http.Request, calendarID string) *event.Calendar {
	if calendarID == "" {
		return nil
	}
	cal, err := h.calendars.FindByID(r.Context(), calendarID)
	if err != nil {
		return nil
	}
	return cal
}

// stampChildren assigns IDs and back-references to conditions and actions.
func stampChildren(rl *rule.Rule) {
	for i := range rl.Conditions {
		if rl.Conditions[i].ID == "" {
			rl.Conditions[i].ID = uuid.NewString()
		}
		rl.Conditions[i].RuleID = rl.ID
	}
	for i := range rl.Actions {
		if rl.Actions[i].ID == "" {
			rl.Actions[i].ID = uuid.NewString()
		}
		rl.Actions[i].RuleID = rl.ID
	}
}
