package rule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Csepi/cal3-sub006/internal/rule"
)

func storedRule(id, owner, name string, trigger rule.TriggerType) *rule.Rule {
	return &rule.Rule{
		ID: id, OwnerID: owner, Name: name,
		Trigger: trigger, Enabled: true, ConditionLogic: rule.LogicAnd,
		Actions: []rule.Action{
			{ID: id + "-a1", Type: rule.ActionAddTag, Config: map[string]any{"tag": "x"}},
		},
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := rule.NewMemoryStore()
	r := storedRule("r-1", "user-1", "color standups", rule.TriggerEventCreated)
	require.NoError(t, s.Create(context.Background(), r))

	got, err := s.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "color standups", got.Name)
	assert.False(t, got.CreatedAt.IsZero())

	// The store hands out clones; mutating the result must not leak back.
	got.Name = "mutated"
	again, err := s.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "color standups", again.Name)
}

func TestMemoryStore_DuplicateName(t *testing.T) {
	s := rule.NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), storedRule("r-1", "user-1", "My Rule", rule.TriggerEventCreated)))

	// Same owner, case-insensitive clash.
	err := s.Create(context.Background(), storedRule("r-2", "user-1", "my rule", rule.TriggerEventCreated))
	assert.ErrorIs(t, err, rule.ErrDuplicateName)

	// Different owner, same name is fine.
	assert.NoError(t, s.Create(context.Background(), storedRule("r-3", "user-2", "My Rule", rule.TriggerEventCreated)))
}

func TestMemoryStore_GetByWebhookToken(t *testing.T) {
	s := rule.NewMemoryStore()
	r := storedRule("r-1", "user-1", "hooked", rule.TriggerWebhookIncoming)
	r.WebhookToken = "tok-123"
	require.NoError(t, s.Create(context.Background(), r))

	got, err := s.GetByWebhookToken(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.ID)

	_, err = s.GetByWebhookToken(context.Background(), "nope")
	assert.ErrorIs(t, err, rule.ErrNotFound)

	// An empty token never matches.
	require.NoError(t, s.Create(context.Background(), storedRule("r-2", "user-1", "plain", rule.TriggerEventCreated)))
	_, err = s.GetByWebhookToken(context.Background(), "")
	assert.ErrorIs(t, err, rule.ErrNotFound)
}

func TestMemoryStore_ListEnabledByTrigger(t *testing.T) {
	s := rule.NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), storedRule("r-1", "user-1", "a", rule.TriggerEventStartsIn)))
	require.NoError(t, s.Create(context.Background(), storedRule("r-2", "user-1", "b", rule.TriggerScheduledTime)))
	require.NoError(t, s.Create(context.Background(), storedRule("r-3", "user-1", "c", rule.TriggerEventCreated)))
	disabled := storedRule("r-4", "user-1", "d", rule.TriggerEventStartsIn)
	disabled.Enabled = false
	require.NoError(t, s.Create(context.Background(), disabled))

	got, err := s.ListEnabledByTrigger(context.Background(), rule.TimeBasedTriggers()...)
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"r-1", "r-2"}, ids)
}

func TestMemoryStore_UpdatePreservesCounters(t *testing.T) {
	s := rule.NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), storedRule("r-1", "user-1", "a", rule.TriggerEventCreated)))
	require.NoError(t, s.RecordExecution(context.Background(), "r-1", time.Now()))

	updated := storedRule("r-1", "user-1", "renamed", rule.TriggerEventCreated)
	require.NoError(t, s.Update(context.Background(), updated))

	got, err := s.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.EqualValues(t, 1, got.ExecutionCount)
	assert.NotNil(t, got.LastExecutedAt)
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	s := rule.NewMemoryStore()
	err := s.Update(context.Background(), storedRule("r-404", "user-1", "a", rule.TriggerEventCreated))
	assert.ErrorIs(t, err, rule.ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := rule.NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), storedRule("r-1", "user-1", "a", rule.TriggerEventCreated)))
	require.NoError(t, s.Delete(context.Background(), "r-1"))

	_, err := s.Get(context.Background(), "r-1")
	assert.ErrorIs(t, err, rule.ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "r-1"), rule.ErrNotFound)
}

func TestMemoryStore_RecordExecution(t *testing.T) {
	s := rule.NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), storedRule("r-1", "user-1", "a", rule.TriggerEventCreated)))

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordExecution(context.Background(), "r-1", at))
	require.NoError(t, s.RecordExecution(context.Background(), "r-1", at.Add(time.Minute)))

	got, err := s.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.ExecutionCount)
	require.NotNil(t, got.LastExecutedAt)
	assert.Equal(t, at.Add(time.Minute), *got.LastExecutedAt)
}
