package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL. Schema is applied by
// cmd/migrate before the server starts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-connected database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func pgPlaceholders(n int) string { return fmt.Sprintf("$%d", n) }

func (s *PostgresStore) Create(ctx context.Context, r *Rule) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rules WHERE owner_id = $1 AND lower(name) = lower($2))`,
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12)`,
		r.ID, r.OwnerID, r.Name, r.Description, string(r.Trigger), string(cfg),
		r.Enabled, string(r.ConditionLogic), r.WebhookToken, r.WebhookSecret,
		now, now)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	if err := insertChildren(ctx, tx, r, pgPlaceholders); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Rule, error) {
	return s.getWhere(ctx, "id = $1", id)
}

func (s *PostgresStore) GetByWebhookToken(ctx context.Context, token string) (*Rule, error) {
	return s.getWhere(ctx, "webhook_token = $1 AND webhook_token != ''", token)
}

func (s *PostgresStore) getWhere(ctx context.Context, where string, arg any) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, trigger_type, trigger_config,
		       enabled, condition_logic, webhook_token, webhook_secret,
		       last_executed_at, execution_count, created_at, updated_at
		FROM rules WHERE `+where, arg)
	r, err := scanPostgresRule(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*Rule, error) {
	return s.listWhere(ctx, "owner_id = $1", ownerID)
}

func (s *PostgresStore) ListEnabledByTrigger(ctx context.Context, triggers ...TriggerType) ([]*Rule, error) {
	if len(triggers) == 0 {
		return nil, nil
	}
	where := "enabled = true AND trigger_type = ANY($1)"
	names := make([]string, len(triggers))
	for i, t := range triggers {
		names[i] = string(t)
	}
	return s.listWhere(ctx, where, pq.Array(names))
}

func (s *PostgresStore) listWhere(ctx context.Context, where string, args ...any) ([]*Rule, error) {
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
		r, err := scanPostgresRule(rows)
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

func (s *PostgresStore) Update(ctx context.Context, r *Rule) error {
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
		UPDATE rules SET name = $1, description = $2, trigger_type = $3, trigger_config = $4,
		       enabled = $5, condition_logic = $6, webhook_token = $7, webhook_secret = $8,
		       updated_at = $9
		WHERE id = $10`,
		r.Name, r.Description, string(r.Trigger), string(cfg),
		r.Enabled, string(r.ConditionLogic), r.WebhookToken, r.WebhookSecret,
		r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_conditions WHERE rule_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clear conditions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_actions WHERE rule_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	if err := insertChildren(ctx, tx, r, pgPlaceholders); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) RecordExecution(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET execution_count = execution_count + 1, last_executed_at = $1
		WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) loadChildren(ctx context.Context, r *Rule) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, field, operator, value, group_id, logic_operator, ord
		FROM rule_conditions WHERE rule_id = $1 ORDER BY ord ASC, id ASC`, r.ID)
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
		FROM rule_actions WHERE rule_id = $1 ORDER BY ord ASC, id ASC`, r.ID)
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

func scanPostgresRule(row rowScanner) (*Rule, error) {
	var r Rule
	var trigger, logic, cfg string
	var lastExec sql.NullTime
	err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &trigger, &cfg,
		&r.Enabled, &logic, &r.WebhookToken, &r.WebhookSecret,
		&lastExec, &r.ExecutionCount, &r.CreatedAt, &r.UpdatedAt)
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
	if lastExec.Valid {
		t := lastExec.Time
		r.LastExecutedAt = &t
	}
	return &r, nil
}
