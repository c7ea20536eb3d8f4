package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skyguard/internal/types"
)

func profileRow(id, name, role string, phone *string) []any {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []any{id, name, strPtr(name + "@example.com"), phone, role, now, now}
}

func TestProfileRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"u1"}).
		Return(rowOf(profileRow("u1", "alice", "admin", strPtr("+15555550100"))...))

	p, err := repo.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, types.RoleAdmin, p.Role)
	assert.True(t, p.HasPhone())
	assert.True(t, p.HasEmail())
	db.AssertExpectations(t)
}

func TestProfileRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundUser))
}

func TestProfileRepository_ListByRoles_FiltersByRole(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	rows := newMockRows([][]any{
		profileRow("u2", "bob", "employee", nil),
		profileRow("u3", "carol", "employee", nil),
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{[]string{"employee"}}).
		Return(rows, nil)

	profiles, err := repo.ListByRoles(context.Background(), []types.UserRole{types.RoleEmployee})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "bob", profiles[0].Username)
	assert.False(t, profiles[0].HasPhone())
	assert.True(t, rows.closed)
	db.AssertExpectations(t)
}

func TestProfileRepository_ListByRoles_AllUsersTakesNoArgs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any(nil)).
		Return(newMockRows(nil), nil)

	profiles, err := repo.ListByRoles(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, profiles)
	db.AssertExpectations(t)
}

func TestProfileRepository_ListByRoles_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := repo.ListByRoles(context.Background(), []types.UserRole{types.RoleAdmin})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestProfileRepository_UpdateRole_ReturnsPrevious(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)
	now := time.Now().UTC()

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"u2", types.RoleAdmin, now}).
		Return(rowOf("employee"))

	prev, err := repo.UpdateRole(context.Background(), "u2", types.RoleAdmin, now)
	require.NoError(t, err)
	assert.Equal(t, types.RoleEmployee, prev)
}

func TestProfileRepository_UpdatePhone_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdatePhone(context.Background(), "ghost", "+15555550100", time.Now())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundUser))
}

func TestProfileRepository_UpdatePhone_ClearStoresNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)
	now := time.Now().UTC()

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"u1", (*string)(nil), now}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.UpdatePhone(context.Background(), "u1", "", now))
	db.AssertExpectations(t)
}
