package rule

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

//go:embed schema.sql
var sqliteSchema string

// SQLiteStore implements Store on an embedded SQLite database. It is the
// default backend for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and applies the rule schema. Safe to call on an
// already-initialized database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply rule schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, r *Rule) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rules WHERE owner_id = ? AND name = ? COLLATE NOCASE)`,
		r.OwnerID, r.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check rule name: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cfg, err := json.Marshal(orEmpty(r.TriggerConfig))
	if err != nil {
		return fmt.Errorf("marshal trigger config: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (id, owner_id, name, description, trigger_type, trigger_config,
		                   enabled, condition_logic, webhook_token, webhook_secret,
		                   execution_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		r.ID, r.OwnerID, r.Name, r.Description, string(r.Trigger), string(cfg),
		r.Enabled, string(r.ConditionLogic), r.WebhookToken, r.WebhookSecret,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	if err := insertChildren(ctx, tx, r, sqlitePlaceholders); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Rule, error) {
	return s.getWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetByWebhookToken(ctx context.Context, token string) (*Rule, error) {
	return s.getWhere(ctx, "webhook_token = ? AND webhook_token != ''", token)
}

func (s *SQLiteStore) getWhere(ctx context.Context, where string, arg any) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, trigger_type, trigger_config,
		       enabled, condition_logic, webhook_token, webhook_secret,
		       last_executed_at, execution_count, created_at, updated_at
		FROM rules WHERE `+where, arg)
	r, err := scanSQLiteRule(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]*Rule, error) {
	return s.listWhere(ctx, "owner_id = ?", ownerID)
}

func (s *SQLiteStore) ListEnabledByTrigger(ctx context.Context, triggers ...TriggerType) ([]*Rule, error) {
	if len(triggers) == 0 {
		return nil, nil
	}
	where := "enabled = 1 AND trigger_type IN (?" + strings.Repeat(",?", len(triggers)-1) + ")"
	args := make([]any, len(triggers))
	for i, t := range triggers {
		args[i] = string(t)
	}
	return s.listWhere(ctx, where, args...)
}

func (s *SQLiteStore) listWhere(ctx context.Context, where string, args ...any) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, trigger_type, trigger_config,
		       enabled, condition_logic, webhook_token, webhook_secret,
		       last_executed_at, execution_count, created_at, updated_at
		FROM rules WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	for _, r := range out {
		if err := s.loadChildren(ctx, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update replaces the stored rule and recreates its condition/action sets in
// one transaction, so readers never observe a partially-updated rule.
func (s *SQLiteStore) Update(ctx context.Context, r *Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cfg, err := json.Marshal(orEmpty(r.TriggerConfig))
	if err != nil {
		return fmt.Errorf("marshal trigger config: %w", err)
	}
	r.UpdatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE rules SET name = ?, description = ?, trigger_type = ?, trigger_config = ?,
		       enabled = ?, condition_logic = ?, webhook_token = ?, webhook_secret = ?,
		       updated_at = ?
		WHERE id = ?`,
		r.Name, r.Description, string(r.Trigger), string(cfg),
		r.Enabled, string(r.ConditionLogic), r.WebhookToken, r.WebhookSecret,
		r.UpdatedAt.Format(time.RFC3339Nano), r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_conditions WHERE rule_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear conditions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_actions WHERE rule_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	if err := insertChildren(ctx, tx, r, sqlitePlaceholders); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) RecordExecution(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET execution_count = execution_count + 1, last_executed_at = ?
		WHERE id = ?`, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) loadChildren(ctx context.Context, r *Rule) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, field, operator, value, group_id, logic_operator, ord
		FROM rule_conditions WHERE rule_id = ? ORDER BY ord ASC, id ASC`, r.ID)
	if err != nil {
		return fmt.Errorf("load conditions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Condition
		var logic string
		if err := rows.Scan(&c.ID, &c.Field, &c.Operator, &c.Value, &c.GroupID, &logic, &c.Order); err != nil {
			return fmt.Errorf("scan condition: %w", err)
		}
		c.RuleID = r.ID
		c.LogicOperator = ConditionLogic(logic)
		r.Conditions = append(r.Conditions, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate conditions: %w", err)
	}

	arows, err := s.db.QueryContext(ctx, `
		SELECT id, type, config, ord
		FROM rule_actions WHERE rule_id = ? ORDER BY ord ASC, id ASC`, r.ID)
	if err != nil {
		return fmt.Errorf("load actions: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var a Action
		var cfg string
		if err := arows.Scan(&a.ID, &a.Type, &cfg, &a.Order); err != nil {
			return fmt.Errorf("scan action: %w", err)
		}
		a.RuleID = r.ID
		if err := json.Unmarshal([]byte(cfg), &a.Config); err != nil {
			return fmt.Errorf("unmarshal action config: %w", err)
		}
		r.Actions = append(r.Actions, a)
	}
	return arows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRule(row rowScanner) (*Rule, error) {
	var r Rule
	var trigger, logic, cfg, createdAt, updatedAt string
	var lastExec sql.NullString
	err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &trigger, &cfg,
		&r.Enabled, &logic, &r.WebhookToken, &r.WebhookSecret,
		&lastExec, &r.ExecutionCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Trigger = TriggerType(trigger)
	r.ConditionLogic = ConditionLogic(logic)
	if err := json.Unmarshal([]byte(cfg), &r.TriggerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if lastExec.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastExec.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_executed_at: %w", err)
		}
		r.LastExecutedAt = &t
	}
	return &r, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// placeholderFunc renders the nth (1-based) bind placeholder for a dialect.
type placeholderFunc func(n int) string

func sqlitePlaceholders(int) string { return "?" }

func insertChildren(ctx context.Context, tx execer, r *Rule, ph placeholderFunc) error {
	for _, c := range r.Conditions {
		q := fmt.Sprintf(`INSERT INTO rule_conditions (id, rule_id, field, operator, value, group_id, logic_operator, ord)
			VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
			ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7), ph(8))
		if _, err := tx.ExecContext(ctx, q,
			c.ID, r.ID, c.Field, string(c.Operator), c.Value, c.GroupID, string(c.LogicOperator), c.Order); err != nil {
			return fmt.Errorf("insert condition: %w", err)
		}
	}
	for _, a := range r.Actions {
		cfg, err := json.Marshal(orEmpty(a.Config))
		if err != nil {
			return fmt.Errorf("marshal action config: %w", err)
		}
		q := fmt.Sprintf(`INSERT INTO rule_actions (id, rule_id, type, config, ord)
			VALUES (%s, %s, %s, %s, %s)`, ph(1), ph(2), ph(3), ph(4), ph(5))
		if _, err := tx.ExecContext(ctx, q, a.ID, r.ID, string(a.Type), string(cfg), a.Order); err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
