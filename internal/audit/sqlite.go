package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Csepi/cal3-sub006/internal/action"
	"github.com/Csepi/cal3-sub006/internal/condition"
	"github.com/Csepi/cal3-sub006/internal/rule"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and applies the audit schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, e *Entry) error {
	trigCtx, conds, results, err := marshalEntry(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, rule_id, event_id, trigger_type, trigger_context,
		                           conditions, action_results, status, error, duration_ms,
		                           executed_by, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RuleID, nullable(e.EventID), string(e.TriggerType), trigCtx,
		conds, results, string(e.Status), e.Error, e.DurationMs,
		nullable(e.ExecutedBy), e.ExecutedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` FROM audit_entries WHERE id = ?`, id)
	return scanSQLiteEntry(row)
}

func (s *SQLiteStore) ListByRule(ctx context.Context, ruleID string, f Filter) ([]*Entry, int, error) {
	where := []string{"rule_id = ?"}
	args := []any{ruleID}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "executed_at >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339Nano))
	}
	if !f.To.IsZero() {
		where = append(where, "executed_at <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339Nano))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_entries WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	q := selectCols + ` FROM audit_entries WHERE ` + cond + ` ORDER BY executed_at DESC, id DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) CountByRule(ctx context.Context, ruleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_entries WHERE rule_id = ?`, ruleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) OldestIDs(ctx context.Context, ruleID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM audit_entries WHERE rule_id = ?
		ORDER BY executed_at ASC, id ASC LIMIT ?`, ruleID, n)
	if err != nil {
		return nil, fmt.Errorf("select oldest audit entries: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan audit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted := 0
	// Delete in chunks to stay under SQLite's bind variable limit.
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := "?" + strings.Repeat(",?", len(batch)-1)
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM audit_entries WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return deleted, fmt.Errorf("delete audit entries: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}
	return deleted, nil
}

func (s *SQLiteStore) DeleteByRule(ctx context.Context, ruleID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("delete rule audit trail: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RuleIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT rule_id FROM audit_entries ORDER BY rule_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list audited rules: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan rule id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context, ruleID string) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM audit_entries WHERE rule_id = ? GROUP BY status`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()
	st := &Stats{ByStatus: make(map[Status]int)}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.ByStatus[Status(status)] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if st.Total == 0 {
		return st, nil
	}

	var avg sql.NullFloat64
	var last sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(duration_ms), MAX(executed_at) FROM audit_entries WHERE rule_id = ?`,
		ruleID).Scan(&avg, &last)
	if err != nil {
		return nil, fmt.Errorf("audit stats aggregate: %w", err)
	}
	if avg.Valid {
		st.AvgDurationMs = avg.Float64
	}
	if last.Valid {
		if t, err := time.Parse(time.RFC3339Nano, last.String); err == nil {
			st.LastExecutedAt = &t
		}
	}
	return st, nil
}

const selectCols = `SELECT id, rule_id, event_id, trigger_type, trigger_context,
	conditions, action_results, status, error, duration_ms, executed_by, executed_at`

func scanSQLiteEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var eventID, conds, executedBy sql.NullString
	var trigger, trigCtx, results, status, executedAt string
	err := row.Scan(&e.ID, &e.RuleID, &eventID, &trigger, &trigCtx,
		&conds, &results, &status, &e.Error, &e.DurationMs, &executedBy, &executedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	e.EventID = eventID.String
	e.ExecutedBy = executedBy.String
	e.TriggerType = rule.TriggerType(trigger)
	e.Status = Status(status)
	if err := unmarshalEntry(&e, trigCtx, conds.String, results); err != nil {
		return nil, err
	}
	if e.ExecutedAt, err = time.Parse(time.RFC3339Nano, executedAt); err != nil {
		return nil, fmt.Errorf("parse executed_at: %w", err)
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func marshalEntry(e *Entry) (trigCtx, conds, results string, err error) {
	ctxRaw, err := json.Marshal(orEmptyMap(e.TriggerContext))
	if err != nil {
		return "", "", "", fmt.Errorf("marshal trigger context: %w", err)
	}
	condsRaw := []byte("null")
	if e.Conditions != nil {
		if condsRaw, err = json.Marshal(e.Conditions); err != nil {
			return "", "", "", fmt.Errorf("marshal conditions result: %w", err)
		}
	}
	resRaw, err := json.Marshal(orEmptySlice(e.ActionResults))
	if err != nil {
		return "", "", "", fmt.Errorf("marshal action results: %w", err)
	}
	return string(ctxRaw), string(condsRaw), string(resRaw), nil
}

func unmarshalEntry(e *Entry, trigCtx, conds, results string) error {
	if err := json.Unmarshal([]byte(trigCtx), &e.TriggerContext); err != nil {
		return fmt.Errorf("unmarshal trigger context: %w", err)
	}
	if conds != "" && conds != "null" {
		e.Conditions = &condition.Outcome{}
		if err := json.Unmarshal([]byte(conds), e.Conditions); err != nil {
			return fmt.Errorf("unmarshal conditions result: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(results), &e.ActionResults); err != nil {
		return fmt.Errorf("unmarshal action results: %w", err)
	}
	return nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []action.Result) []action.Result {
	if s == nil {
		return []action.Result{}
	}
	return s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
