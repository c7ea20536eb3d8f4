package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skyguard/internal/types"
)

func prefRow(userID string, weather bool) []any {
	return []any{userID, true, weather, true, true, true, false, true, time.Now().UTC()}
}

func TestPreferenceRepository_Get_CreatesDefaultsFirst(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPreferenceRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{[]string{"u1"}}).Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"u1"}).
		Return(rowOf(prefRow("u1", false)...))

	p, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, p.WeatherAlerts)
	assert.False(t, p.PushEnabled)
	assert.True(t, p.SMSEnabled)
	db.AssertExpectations(t)
}

func TestPreferenceRepository_Get_DefaultInsertFails(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPreferenceRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("db down"))

	_, err := repo.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestPreferenceRepository_EnsureDefaults_EmptyIsNoop(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPreferenceRepository(db)

	require.NoError(t, repo.EnsureDefaults(context.Background(), nil))
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestPreferenceRepository_ListForUsers_KeyedByUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPreferenceRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{[]string{"u1", "u2"}}).
		Return(newMockRows([][]any{prefRow("u1", true), prefRow("u2", false)}), nil)

	prefs, err := repo.ListForUsers(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.True(t, prefs["u1"].WeatherAlerts)
	assert.False(t, prefs["u2"].WeatherAlerts)
}

func TestPreferenceRepository_ListForUsers_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPreferenceRepository(db)

	rows := newMockRows([][]any{prefRow("u1", true)})
	rows.scanErr = errors.New("bad column")
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListForUsers(context.Background(), []string{"u1"})
	require.Error(t, err)
	assert.True(t, rows.closed)
}

func TestPreferenceRepository_Update_Upserts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPreferenceRepository(db)

	prefs := types.DefaultPreferences("u1")
	prefs.SMSEnabled = false

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 9 && args[0] == "u1" && args[5] == false
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Update(context.Background(), &prefs))
	db.AssertExpectations(t)
}
