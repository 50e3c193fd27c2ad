package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Csepi/cal3-sub006/internal/rule"
)

// PostgresStore implements Store backed by PostgreSQL. Schema is applied by
// cmd/migrate.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-connected database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	trigCtx, conds, results, err := marshalEntry(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, rule_id, event_id, trigger_type, trigger_context,
		                           conditions, action_results, status, error, duration_ms,
		                           executed_by, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.RuleID, nullable(e.EventID), string(e.TriggerType), trigCtx,
		conds, results, string(e.Status), e.Error, e.DurationMs,
		nullable(e.ExecutedBy), e.ExecutedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` FROM audit_entries WHERE id = $1`, id)
	return scanPostgresEntry(row)
}

func (s *PostgresStore) ListByRule(ctx context.Context, ruleID string, f Filter) ([]*Entry, int, error) {
	where := []string{"rule_id = $1"}
	args := []any{ruleID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From.UTC())
		where = append(where, fmt.Sprintf("executed_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.UTC())
		where = append(where, fmt.Sprintf("executed_at <= $%d", len(args)))
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
		e, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) CountByRule(ctx context.Context, ruleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_entries WHERE rule_id = $1`, ruleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) OldestIDs(ctx context.Context, ruleID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM audit_entries WHERE rule_id = $1
		ORDER BY executed_at ASC, id ASC LIMIT $2`, ruleID, n)
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

func (s *PostgresStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete audit entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteByRule(ctx context.Context, ruleID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE rule_id = $1`, ruleID); err != nil {
		return fmt.Errorf("delete rule audit trail: %w", err)
	}
	return nil
}

func (s *PostgresStore) RuleIDs(ctx context.Context) ([]string, error) {
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

func (s *PostgresStore) Stats(ctx context.Context, ruleID string) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM audit_entries WHERE rule_id = $1 GROUP BY status`, ruleID)
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
	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(duration_ms), MAX(executed_at) FROM audit_entries WHERE rule_id = $1`,
		ruleID).Scan(&avg, &last)
	if err != nil {
		return nil, fmt.Errorf("audit stats aggregate: %w", err)
	}
	if avg.Valid {
		st.AvgDurationMs = avg.Float64
	}
	if last.Valid {
		t := last.Time
		st.LastExecutedAt = &t
	}
	return st, nil
}

func scanPostgresEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var eventID, conds, executedBy sql.NullString
	var trigger, trigCtx, results, status string
	err := row.Scan(&e.ID, &e.RuleID, &eventID, &trigger, &trigCtx,
		&conds, &results, &status, &e.Error, &e.DurationMs, &executedBy, &e.ExecutedAt)
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
	return &e, nil
}
