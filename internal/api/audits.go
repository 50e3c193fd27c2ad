package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Csepi/cal3-sub006/internal/audit"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// GET /api/v1/automation/rules/{ruleID}/audit
//
// Query params: status, from, to (RFC3339), limit, offset.
func (h *Handler) listAuditEntries(w http.ResponseWriter, r *http.Request) {
	rl := h.loadOwned(w, r)
	if rl == nil {
		return
	}
	f, err := auditFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, total, err := h.audits.ListByRule(r.Context(), rl.ID, f)
	if err != nil {
		h.log.Error("audit list failed", "rule_id", rl.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

// GET /api/v1/automation/audit/{entryID}
func (h *Handler) getAuditEntry(w http.ResponseWriter, r *http.Request) {
	userID := owner(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, userHeader+" header is required")
		return
	}
	entry, err := h.audits.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "audit entry not found")
		} else {
			h.log.Error("audit lookup failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	rl, err := h.rules.Get(r.Context(), entry.RuleID)
	if err != nil || rl.OwnerID != userID {
		// Hide entries of other users' rules the same way as missing ones.
		writeError(w, http.StatusNotFound, "audit entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GET /api/v1/automation/rules/{ruleID}/audit/stats
func (h *Handler) auditStats(w http.ResponseWriter, r *http.Request) {
	rl := h.loadOwned(w, r)
	if rl == nil {
		return
	}
	stats, err := h.audits.Stats(r.Context(), rl.ID)
	if err != nil {
		h.log.Error("audit stats failed", "rule_id", rl.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	near, count, err := h.retention.NearCapacity(r.Context(), rl.ID)
	if err != nil {
		h.log.Error("audit capacity check failed", "rule_id", rl.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":        stats,
		"nearCapacity": near,
		"count":        count,
		"cap":          h.retention.Cap(),
	})
}

// POST /api/v1/automation/rules/{ruleID}/audit/enforce
func (h *Handler) enforceAudit(w http.ResponseWriter, r *http.Request) {
	rl := h.loadOwned(w, r)
	if rl == nil {
		return
	}
	deleted, err := h.retention.Enforce(r.Context(), rl.ID)
	if err != nil {
		h.log.Error("audit retention enforcement failed", "rule_id", rl.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func auditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{Limit: defaultAuditPageSize}

	if s := q.Get("status"); s != "" {
		st := audit.Status(s)
		if !st.Valid() {
			return f, errors.New("unknown status filter " + strconv.Quote(s))
		}
		f.Status = st
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if s := q.Get(name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return f, errors.New(name + " must be an RFC3339 timestamp")
			}
			*dst = t
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		if n > maxAuditPageSize {
			n = maxAuditPageSize
		}
		f.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, errors.New("offset must not be negative")
		}
		f.Offset = n
	}
	return f, nil
}
