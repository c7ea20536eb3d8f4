package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyguard/internal/types"
)

var dirNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type memProfiles struct {
	users   map[string]*types.Profile
	order   []string
	roleErr error
}

func newMemProfiles(ps ...types.Profile) *memProfiles {
	m := &memProfiles{users: map[string]*types.Profile{}}
	for i := range ps {
		p := ps[i]
		m.users[p.UserID] = &p
		m.order = append(m.order, p.UserID)
	}
	return m
}

func (m *memProfiles) GetByID(_ context.Context, id string) (*types.Profile, error) {
	p, ok := m.users[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) List(_ context.Context, limit, offset int) ([]types.Profile, error) {
	var out []types.Profile
	for i := offset; i < len(m.order) && len(out) < limit; i++ {
		out = append(out, *m.users[m.order[i]])
	}
	return out, nil
}

func (m *memProfiles) UpdateRole(_ context.Context, id string, role types.UserRole, _ time.Time) (types.UserRole, error) {
	if m.roleErr != nil {
		return "", m.roleErr
	}
	p, ok := m.users[id]
	if !ok {
		return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	prev := p.Role
	p.Role = role
	return prev, nil
}

func (m *memProfiles) UpdatePhone(_ context.Context, id, phone string, _ time.Time) error {
	p, ok := m.users[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	if phone == "" {
		p.PhoneNumber = nil
	} else {
		p.PhoneNumber = &phone
	}
	return nil
}

type memPrefs struct {
	rows    map[string]types.Preferences
	updates int
}

func (m *memPrefs) Get(_ context.Context, id string) (*types.Preferences, error) {
	p, ok := m.rows[id]
	if !ok {
		p = types.DefaultPreferences(id)
		m.rows[id] = p
	}
	return &p, nil
}

func (m *memPrefs) Update(_ context.Context, p *types.Preferences) error {
	m.updates++
	m.rows[p.UserID] = *p
	return nil
}

func (m *memPrefs) ListForUsers(_ context.Context, ids []string) (map[string]types.Preferences, error) {
	out := map[string]types.Preferences{}
	for _, id := range ids {
		if p, ok := m.rows[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type roleAudit struct {
	target   string
	old, new types.UserRole
	success  bool
}

type fakeAuditor struct {
	roles   []roleAudit
	actions []string
}

func (f *fakeAuditor) RoleChange(_ context.Context, _ types.Actor, target string, oldRole, newRole types.UserRole, success bool) {
	f.roles = append(f.roles, roleAudit{target, oldRole, newRole, success})
}

func (f *fakeAuditor) AdminAction(_ context.Context, _ types.Actor, action string, _ map[string]any) {
	f.actions = append(f.actions, action)
}

func asUser(id string, role types.UserRole) context.Context {
	return types.WithActor(context.Background(), types.Actor{ID: id, Type: types.ActorTypeUser, Role: role})
}

func newTestService() (*Service, *memProfiles, *memPrefs, *fakeAuditor) {
	profiles := newMemProfiles(
		types.Profile{UserID: "admin-1", Username: "alice", Role: types.RoleAdmin},
		types.Profile{UserID: "emp-1", Username: "bob", Role: types.RoleEmployee},
	)
	prefs := &memPrefs{rows: map[string]types.Preferences{}}
	auditor := &fakeAuditor{}
	return NewService(profiles, prefs, auditor, &types.FixedClock{T: dirNow}, nil), profiles, prefs, auditor
}

func TestListUsers_DefaultsMissingPreferences(t *testing.T) {
	svc, _, prefs, _ := newTestService()
	stored := types.DefaultPreferences("emp-1")
	stored.SMSEnabled = false
	prefs.rows["emp-1"] = stored

	users, err := svc.ListUsers(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, users[0].Preferences.SMSEnabled)
	assert.Equal(t, "admin-1", users[0].Preferences.UserID)
	assert.False(t, users[1].Preferences.SMSEnabled)
}

func TestUpdatePreferences_PartialPatch(t *testing.T) {
	svc, _, prefs, _ := newTestService()
	off := false

	got, err := svc.UpdatePreferences(context.Background(), "emp-1", types.PreferencesPatch{WeatherAlerts: &off})
	require.NoError(t, err)
	assert.False(t, got.WeatherAlerts)
	assert.True(t, got.EmergencyAlerts)
	assert.Equal(t, dirNow, got.UpdatedAt)
	assert.False(t, prefs.rows["emp-1"].WeatherAlerts)
}

func TestUpdatePreferences_EmptyPatchIsNoop(t *testing.T) {
	svc, _, prefs, _ := newTestService()

	got, err := svc.UpdatePreferences(context.Background(), "emp-1", types.PreferencesPatch{})
	require.NoError(t, err)
	assert.True(t, got.SMSEnabled)
	assert.Zero(t, prefs.updates)
}

func TestChangeRole_Success(t *testing.T) {
	svc, _, _, auditor := newTestService()

	p, err := svc.ChangeRole(asUser("admin-1", types.RoleAdmin), "emp-1", types.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, p.Role)
	require.Len(t, auditor.roles, 1)
	assert.Equal(t, roleAudit{"emp-1", types.RoleEmployee, types.RoleAdmin, true}, auditor.roles[0])
}

func TestChangeRole_SelfIsRejectedAndAudited(t *testing.T) {
	svc, profiles, _, auditor := newTestService()

	_, err := svc.ChangeRole(asUser("admin-1", types.RoleAdmin), "admin-1", types.RoleEmployee)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationSelfDemotion))
	assert.Equal(t, types.RoleAdmin, profiles.users["admin-1"].Role)
	require.Len(t, auditor.roles, 1)
	assert.False(t, auditor.roles[0].success)
}

func TestChangeRole_EmployeeForbidden(t *testing.T) {
	svc, _, _, auditor := newTestService()

	_, err := svc.ChangeRole(asUser("emp-1", types.RoleEmployee), "admin-1", types.RoleEmployee)
	assert.True(t, types.IsCode(err, types.ErrCodePermissionRole))
	require.Len(t, auditor.roles, 1)
	assert.False(t, auditor.roles[0].success)
}

func TestChangeRole_InvalidRoleAndStoreError(t *testing.T) {
	svc, profiles, _, auditor := newTestService()

	_, err := svc.ChangeRole(asUser("admin-1", types.RoleAdmin), "emp-1", "owner")
	assert.True(t, types.IsCode(err, types.ErrCodeValidationRole))
	assert.Empty(t, auditor.roles)

	profiles.roleErr = errors.New("db down")
	_, err = svc.ChangeRole(asUser("admin-1", types.RoleAdmin), "emp-1", types.RoleAdmin)
	require.Error(t, err)
	require.Len(t, auditor.roles, 1)
	assert.False(t, auditor.roles[0].success)
}

func TestUpdatePhone(t *testing.T) {
	svc, profiles, _, auditor := newTestService()

	p, err := svc.UpdatePhone(asUser("emp-1", types.RoleEmployee), "emp-1", "(555) 234-5678")
	require.NoError(t, err)
	require.NotNil(t, p.PhoneNumber)
	assert.Equal(t, "+15552345678", *p.PhoneNumber)
	assert.Empty(t, auditor.actions, "self edits are not admin actions")

	_, err = svc.UpdatePhone(asUser("admin-1", types.RoleAdmin), "emp-1", "")
	require.NoError(t, err)
	assert.Nil(t, profiles.users["emp-1"].PhoneNumber)
	assert.Equal(t, []string{types.ActionPhoneUpdated}, auditor.actions)
}

func TestUpdatePhone_Rejections(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.UpdatePhone(asUser("emp-1", types.RoleEmployee), "admin-1", "5552345678")
	assert.True(t, types.IsCode(err, types.ErrCodePermissionRole))

	_, err = svc.UpdatePhone(asUser("emp-1", types.RoleEmployee), "emp-1", "123")
	assert.True(t, types.IsCode(err, types.ErrCodeValidationPhone))

	_, err = svc.UpdatePhone(asUser("admin-1", types.RoleAdmin), "ghost", "5552345678")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundUser))
}
