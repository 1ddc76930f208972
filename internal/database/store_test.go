package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

var sessionCols = []string{"id", "user_id", "filename", "uploaded_at", "record_count", "summary_json"}

func TestStore_CreateSession(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`INSERT INTO upload_sessions`).
		WithArgs(int64(7), "pumps.csv", at, int32(2), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCopyFrom(pgx.Identifier{"equipment"}, equipmentCopyColumns).
		WillReturnResult(2)
	mock.ExpectQuery(`DELETE FROM upload_sessions`).
		WithArgs(int64(7), int32(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectCommit()

	created, err := store.CreateSession(ctx, core.NewSession{
		UserID:     7,
		Filename:   "pumps.csv",
		UploadedAt: at,
		Records:    pumpRecords(),
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(11), created.Session.ID)
	assert.Equal(t, []int64{3}, created.Evicted)
	assert.Equal(t, 2, created.Session.Summary.TotalCount)
	assert.Equal(t, map[string]int{"Pump": 2}, created.Session.Summary.TypeDistribution)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSession_RollsBackOnCopyFailure(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`INSERT INTO upload_sessions`).
		WithArgs(int64(7), "pumps.csv", pgxmock.AnyArg(), int32(2), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectCopyFrom(pgx.Identifier{"equipment"}, equipmentCopyColumns).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := store.CreateSession(ctx, core.NewSession{UserID: 7, Filename: "pumps.csv", Records: pumpRecords()}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy equipment")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSession_UnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.CreateSession(context.Background(), core.NewSession{UserID: 99, Filename: "a.csv"}, 5)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestSession(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY uploaded_at DESC, id DESC\s+LIMIT 1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow(int64(11), int64(7), "pumps.csv", at, int32(2),
				[]byte(`{"total_count":2,"avg_flowrate":15,"type_distribution":{"Pump":2}}`)))

	sess, err := store.LatestSession(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(11), sess.ID)
	assert.Equal(t, 2, sess.RecordCount)
	assert.Equal(t, 15.0, sess.Summary.AvgFlowrate)
	assert.Equal(t, 2, sess.Summary.TypeDistribution["Pump"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestSession_None(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM upload_sessions`).
		WithArgs(int64(7)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.LatestSession(context.Background(), 7)
	assert.ErrorIs(t, err, core.ErrNoSessions)
}

func TestStore_GetSession_NotOwned(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE id = \$1 AND user_id = \$2`).
		WithArgs(int64(11), int64(8)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetSession(context.Background(), 8, 11)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListEquipment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM equipment\s+WHERE session_id = \$1\s+ORDER BY id`).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "name", "equipment_type", "flowrate", "pressure", "temperature"}).
			AddRow(int64(1), int64(11), "Pump1", "Pump", 10.0, 5.0, 20.0).
			AddRow(int64(2), int64(11), "HX-1", "HeatExchanger", 3.5, 1.0, 90.0))

	rows, err := store.ListEquipment(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, core.TypeHeatExchanger, rows[1].Type)
	assert.Equal(t, 3.5, rows[1].Flowrate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateUser_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "a@example.com", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := store.CreateUser(context.Background(), "alice", "a@example.com", "hash")
	assert.ErrorIs(t, err, auth.ErrUserExists)
}

func TestStore_Tokens(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM auth_tokens WHERE token = \$1`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM auth_tokens WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	assert.ErrorIs(t, store.DeleteToken(ctx, "gone"), auth.ErrTokenNotFound)

	n, err := store.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
