package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Csepi/cal3-sub006/internal/metrics"
)

// DefaultRetentionCap is the per-rule audit entry limit.
const DefaultRetentionCap = 1000

// nearCapacityRatio is the fill level at which NearCapacity starts reporting
// true, for proactive warnings before eviction kicks in.
const nearCapacityRatio = 0.9

// Retention enforces the per-rule circular buffer: once a rule's trail
// exceeds the cap, the oldest entries by executedAt are deleted. The cap can
// be changed at runtime (config hot-reload).
type Retention struct {
	store Store
	cap   atomic.Int64
	log   *slog.Logger
}

// NewRetention creates a Retention manager. A non-positive cap falls back to
// DefaultRetentionCap.
func NewRetention(store Store, cap int, log *slog.Logger) *Retention {
	r := &Retention{store: store, log: log}
	r.SetCap(cap)
	return r
}

// Cap returns the current retention cap.
func (r *Retention) Cap() int {
	return int(r.cap.Load())
}

// SetCap updates the retention cap; non-positive values reset to the default.
func (r *Retention) SetCap(n int) {
	if n <= 0 {
		n = DefaultRetentionCap
	}
	r.cap.Store(int64(n))
}

// Enforce trims a single rule's trail to the cap and returns how many entries
// were deleted. Calling it again with no new entries deletes nothing.
func (r *Retention) Enforce(ctx context.Context, ruleID string) (int, error) {
	limit := r.Cap()
	total, err := r.store.CountByRule(ctx, ruleID)
	if err != nil {
		return 0, err
	}
	if total <= limit {
		return 0, nil
	}
	excess := total - limit
	ids, err := r.store.OldestIDs(ctx, ruleID, excess)
	if err != nil {
		return 0, err
	}
	deleted, err := r.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return deleted, err
	}
	metrics.AuditEvicted.Add(float64(deleted))
	r.log.Info("audit trail trimmed", "rule_id", ruleID, "deleted", deleted, "cap", limit)
	return deleted, nil
}

// EnforceAll trims every rule that has audit entries.
func (r *Retention) EnforceAll(ctx context.Context) (int, error) {
	ruleIDs, err := r.store.RuleIDs(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ruleIDs {
		n, err := r.Enforce(ctx, id)
		total += n
		if err != nil {
			// Keep sweeping the remaining rules; one bad rule should not
			// stall the whole sweep.
			r.log.Warn("audit retention enforcement failed", "rule_id", id, "err", err)
		}
	}
	return total, nil
}

// NearCapacity reports whether a rule's trail is at or past 90% of the cap.
func (r *Retention) NearCapacity(ctx context.Context, ruleID string) (bool, int, error) {
	total, err := r.store.CountByRule(ctx, ruleID)
	if err != nil {
		return false, 0, err
	}
	return float64(total) >= float64(r.Cap())*nearCapacityRatio, total, nil
}

// Run sweeps all rules on the given interval until ctx is cancelled.
// The reference deployment runs this once daily.
func (r *Retention) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.EnforceAll(ctx); err != nil {
				r.log.Warn("audit retention sweep failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
