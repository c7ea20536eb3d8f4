package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skyguard/internal/types"
)

func TestAuditRepository_Insert_NilDetailsStoresEmptyObject(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAuditRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return string(args[2].([]byte)) == "{}"
	})).Return(rowOf("audit-1", testNow))

	e := &types.AuditLogEntry{EventType: types.AuditFailedAuth}
	require.NoError(t, repo.Insert(context.Background(), e))
	assert.Equal(t, "audit-1", e.ID)
}

func TestAuditRepository_List_BuildsFilter(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAuditRepository(db)

	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "event_type = $1") && strings.Contains(sql, "LIMIT $2 OFFSET $3")
	}), []any{types.AuditAdminAction, 51, 0}).
		Return(newMockRows([][]any{
			{"audit-1", "admin_action", strPtr("admin-1"), []byte(`{"action":"send_alert"}`), nil, nil, testNow},
		}), nil)

	out, err := repo.List(context.Background(), AuditFilter{EventType: types.AuditAdminAction, Limit: 51})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "send_alert", out[0].Details["action"])
	db.AssertExpectations(t)
}

func TestAuditRepository_List_DefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAuditRepository(db)

	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return !strings.Contains(sql, "WHERE")
	}), []any{types.DefaultPageSize, 0}).Return(newMockRows(nil), nil)

	out, err := repo.List(context.Background(), AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, out)
	db.AssertExpectations(t)
}

func TestAuditRepository_DeleteByIDs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAuditRepository(db)

	n, err := repo.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{[]string{"a", "b"}}).
		Return(pgconn.NewCommandTag("DELETE 2"), nil)
	n, err = repo.DeleteByIDs(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRateLimitRepository_Attempt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRateLimitRepository(db)
	windowStart := testNow.Add(-time.Minute)
	oldest := testNow.Add(-40 * time.Second)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"send_alert:u1", testNow, windowStart, 5}).
		Return(rowOf(true, 3, oldest))

	allowed, count, first, err := repo.Attempt(context.Background(), "send_alert:u1", testNow, windowStart, 5)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 3, count)
	assert.Equal(t, oldest, first)
}

func TestRateLimitRepository_AttemptError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRateLimitRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("conn reset")})

	_, _, _, err := repo.Attempt(context.Background(), "k", testNow, testNow.Add(-time.Minute), 5)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestQARepository_CreateQuestion(t *testing.T) {
	db := new(mockDBTX)
	repo := NewQARepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rowOf("q1", "open", testNow, testNow))

	q := &types.Question{Title: "Harness?", Question: "Which harness for the lift?", AskedBy: "u1",
		Category: types.CategorySafety, Priority: types.QuestionHigh}
	require.NoError(t, repo.CreateQuestion(context.Background(), q))
	assert.Equal(t, "q1", q.ID)
	assert.Equal(t, types.QuestionOpen, q.Status)
}

func TestQARepository_ListAnswers(t *testing.T) {
	db := new(mockDBTX)
	repo := NewQARepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"q1"}).
		Return(newMockRows([][]any{
			{"ans-1", "q1", "Use the full-body harness.", "admin-1", strPtr("alice"), true, testNow},
		}), nil)

	out, err := repo.ListAnswers(context.Background(), "q1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsOfficial)
	assert.Equal(t, "alice", *out[0].AnswererName)
}
