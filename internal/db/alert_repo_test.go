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

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func alertRow(id string) []any {
	sent := testNow
	return []any{id, "weather", "Storm", "Take cover", "high", "all", "sent", strPtr("admin-1"), testNow, &sent}
}

func TestAlertRepository_Create_FillsGeneratedFields(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rowOf("alert-1", testNow))

	a := &types.Alert{
		AlertType:  types.AlertTypeEmergency,
		Title:      "Test",
		Message:    "Evacuate",
		Priority:   types.PriorityCritical,
		Recipients: types.TargetAll,
		Status:     types.AlertStatusSent,
	}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.Equal(t, "alert-1", a.ID)
	assert.Equal(t, testNow, a.CreatedAt)
}

func TestAlertRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("insert failed")})

	err := repo.Create(context.Background(), &types.Alert{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestAlertRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "nope")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundAlert))
}

func TestAlertRepository_ListWithCounts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{51, 0}).
		Return(newMockRows([][]any{
			append(alertRow("a1"), 10, 4),
			append(alertRow("a2"), 3, 0),
		}), nil)

	out, err := repo.ListWithCounts(context.Background(), 51, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a1", out[0].ID)
	assert.Equal(t, 10, out[0].RecipientCount)
	assert.Equal(t, 4, out[0].ReadCount)
	assert.Equal(t, types.PriorityHigh, out[0].Priority)
}

func TestAlertRepository_ListForUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"u1", 20, 0}).
		Return(newMockRows([][]any{
			append(alertRow("a1"), "rec-1", "sms", "delivered", "unread", nil),
		}), nil)

	out, err := repo.ListForUser(context.Background(), "u1", 20, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "rec-1", out[0].RecipientID)
	assert.Equal(t, types.DeliverySMS, out[0].DeliveryMethod)
	assert.Equal(t, types.ReadStatusUnread, out[0].ReadStatus)
	assert.Nil(t, out[0].ReadAt)
}

func TestRecipientRepository_BulkInsert_ReturnsInsertedRows(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRecipientRepository(db)

	recs := []NewRecipient{
		{UserID: "u1", DeliveryMethod: types.DeliverySMS, DeliveryStatus: types.DeliverySent},
		{UserID: "u2", DeliveryMethod: types.DeliveryEmail, DeliveryStatus: types.DeliverySent},
	}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		ids, ok := args[1].([]string)
		return ok && len(ids) == 2 && args[0] == "alert-1"
	})).Return(newMockRows([][]any{
		// u2 already existed; ON CONFLICT skipped it.
		{"rec-1", "u1", "sms", "sent"},
	}), nil)

	out, err := repo.BulkInsert(context.Background(), "alert-1", recs, testNow)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "rec-1", out[0].ID)
	assert.Equal(t, "alert-1", out[0].AlertID)
	assert.Equal(t, types.ReadStatusUnread, out[0].ReadStatus)
	require.NotNil(t, out[0].SentAt)
	assert.Equal(t, testNow, *out[0].SentAt)
}

func TestRecipientRepository_BulkInsert_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRecipientRepository(db)

	out, err := repo.BulkInsert(context.Background(), "alert-1", nil, testNow)
	require.NoError(t, err)
	assert.Empty(t, out)
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecipientRepository_MarkRead_OnlyFirstTransitionChanges(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRecipientRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	changed, err := repo.MarkRead(context.Background(), "a1", "u1", testNow)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkRead(context.Background(), "a1", "u1", testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRecipientRepository_ListReceipts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRecipientRepository(db)

	readAt := testNow.Add(time.Minute)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"a1"}).
		Return(newMockRows([][]any{
			{"u1", "alice", "employee", "read", &readAt, &testNow},
			{"u2", "bob", "admin", "unread", nil, &testNow},
		}), nil)

	out, err := repo.ListReceipts(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, types.ReadStatusRead, out[0].ReadStatus)
	assert.Equal(t, readAt, *out[0].ReadAt)
	assert.Nil(t, out[1].ReadAt)
}

func TestRecipientRepository_MarkDeliveredAndFailed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRecipientRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"rec-1", testNow}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"rec-2"}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	moved, err := repo.MarkDelivered(context.Background(), "rec-1", testNow)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.MarkFailed(context.Background(), "rec-2")
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestRecipientRepository_ResponseCounts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRecipientRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rowOf(3, 8))

	read, total, err := repo.ResponseCounts(context.Background(), testNow.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 3, read)
	assert.Equal(t, 8, total)
}

func TestRecipientRepository_DeliveryStatus(t *testing.T) {
	db := new(mockDBTX)
	repo := NewRecipientRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"rec-1"}).
		Return(rowOf("delivered"))
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"gone"}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	status, err := repo.DeliveryStatus(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, types.DeliveryDelivered, status)

	_, err = repo.DeliveryStatus(context.Background(), "gone")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundRecipient))
}
