package weather

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyguard/internal/types"
)

type memRuleStore struct {
	rules map[string]*types.WeatherAlertRule
	seq   int
}

func newMemRuleStore() *memRuleStore {
	return &memRuleStore{rules: map[string]*types.WeatherAlertRule{}}
}

func (m *memRuleStore) List(context.Context) ([]types.WeatherAlertRule, error) {
	var out []types.WeatherAlertRule
	for _, r := range m.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memRuleStore) GetByID(_ context.Context, id string) (*types.WeatherAlertRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
	}
	cp := *r
	return &cp, nil
}

func (m *memRuleStore) Create(_ context.Context, r *types.WeatherAlertRule) error {
	m.seq++
	r.ID = "r" + string(rune('0'+m.seq))
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memRuleStore) Update(_ context.Context, r *types.WeatherAlertRule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
	}
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memRuleStore) SetActive(_ context.Context, id string, active bool) (*types.WeatherAlertRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
	}
	r.IsActive = active
	cp := *r
	return &cp, nil
}

func (m *memRuleStore) Delete(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
	}
	delete(m.rules, id)
	return nil
}

type auditRecord struct {
	action  string
	details map[string]any
}

type fakeAuditor struct{ records []auditRecord }

func (f *fakeAuditor) AdminAction(_ context.Context, _ types.Actor, action string, details map[string]any) {
	f.records = append(f.records, auditRecord{action, details})
}

func adminCtx() context.Context {
	return types.WithActor(context.Background(), types.Actor{ID: "admin-1", Type: types.ActorTypeUser, Role: types.RoleAdmin})
}

func validInput() RuleInput {
	return RuleInput{
		AlertType:         types.RuleWind,
		ConditionOperator: types.OpGreaterThan,
		ThresholdValue:    20,
		AlertTitle:        "High Wind",
		AlertMessage:      "Secure loose equipment.",
	}
}

func TestRuleService_CreateToggleDelete(t *testing.T) {
	store := newMemRuleStore()
	auditor := &fakeAuditor{}
	svc := NewRuleService(store, auditor, nil)
	ctx := adminCtx()

	rule, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	assert.True(t, rule.IsActive)
	require.NotNil(t, rule.CreatedBy)
	assert.Equal(t, "admin-1", *rule.CreatedBy)

	toggled, err := svc.Toggle(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	require.NoError(t, svc.Delete(ctx, rule.ID))
	assert.Empty(t, store.rules)

	require.Len(t, auditor.records, 3)
	assert.Equal(t, types.ActionRuleCreated, auditor.records[0].action)
	assert.Equal(t, types.ActionRuleToggled, auditor.records[1].action)
	assert.Equal(t, false, auditor.records[1].details["is_active"])
	assert.Equal(t, types.ActionRuleDeleted, auditor.records[2].action)
}

func TestRuleService_UpdateKeepsActiveFlagWhenOmitted(t *testing.T) {
	store := newMemRuleStore()
	svc := NewRuleService(store, nil, nil)
	ctx := adminCtx()

	inactive := false
	in := validInput()
	in.IsActive = &inactive
	rule, err := svc.Create(ctx, in)
	require.NoError(t, err)

	update := validInput()
	update.ThresholdValue = 30
	updated, err := svc.Update(ctx, rule.ID, update)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 30.0, store.rules[rule.ID].ThresholdValue)
}

func TestRuleService_Validation(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil)
	tests := []struct {
		name   string
		mutate func(*RuleInput)
		code   types.ErrorCode
	}{
		{"bad type", func(in *RuleInput) { in.AlertType = "hail" }, types.ErrCodeValidationRule},
		{"bad operator", func(in *RuleInput) { in.ConditionOperator = "between" }, types.ErrCodeValidationRule},
		{"empty title", func(in *RuleInput) { in.AlertTitle = "" }, types.ErrCodeValidationTitle},
		{"empty message", func(in *RuleInput) { in.AlertMessage = "<b></b>" }, types.ErrCodeValidationMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Create(adminCtx(), in)
			assert.True(t, types.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestRuleService_LocationFilterSanitized(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil)
	in := validInput()
	blank := "   "
	in.LocationFilter = &blank
	rule, err := svc.Create(adminCtx(), in)
	require.NoError(t, err)
	assert.Nil(t, rule.LocationFilter)
}

func TestRuleService_NotFound(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil)
	_, err := svc.Toggle(adminCtx(), "missing")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundRule))
	_, err = svc.Update(adminCtx(), "missing", validInput())
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundRule))
}

func TestRuleService_RequiresActor(t *testing.T) {
	svc := NewRuleService(newMemRuleStore(), nil, nil)
	_, err := svc.Create(context.Background(), validInput())
	assert.True(t, types.IsCode(err, types.ErrCodeAuthRequired))
}
