package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// UploadSessionRow mirrors the upload_sessions table.
type UploadSessionRow struct {
	ID          int64
	UserID      int64
	Filename    string
	UploadedAt  time.Time
	RecordCount int32
	SummaryJSON []byte
}

// EquipmentRow mirrors the equipment table.
type EquipmentRow struct {
	ID            int64
	SessionID     int64
	Name          string
	EquipmentType string
	Flowrate      float64
	Pressure      float64
	Temperature   float64
}

// UserRow mirrors the users table.
type UserRow struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// TokenRow mirrors the auth_tokens table.
type TokenRow struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

const sessionColumns = `id, user_id, filename, uploaded_at, record_count, summary_json`

func scanSession(row pgx.Row) (UploadSessionRow, error) {
	var s UploadSessionRow
	err := row.Scan(&s.ID, &s.UserID, &s.Filename, &s.UploadedAt, &s.RecordCount, &s.SummaryJSON)
	return s, err
}

const lockUser = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

// LockUser serializes uploads for one user until the transaction ends.
func (q *Queries) LockUser(ctx context.Context, userID int64) error {
	var id int64
	return q.db.QueryRow(ctx, lockUser, userID).Scan(&id)
}

const insertSession = `INSERT INTO upload_sessions (user_id, filename, uploaded_at, record_count, summary_json)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

type InsertSessionParams struct {
	UserID      int64
	Filename    string
	UploadedAt  time.Time
	RecordCount int32
	SummaryJSON []byte
}

func (q *Queries) InsertSession(ctx context.Context, arg InsertSessionParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertSession,
		arg.UserID,
		arg.Filename,
		arg.UploadedAt,
		arg.RecordCount,
		arg.SummaryJSON,
	).Scan(&id)
	return id, err
}

var equipmentCopyColumns = []string{"session_id", "name", "equipment_type", "flowrate", "pressure", "temperature"}

// CopyEquipment bulk inserts rows with COPY. Ids are assigned in row order.
func (q *Queries) CopyEquipment(ctx context.Context, rows []EquipmentRow) (int64, error) {
	return q.db.CopyFrom(ctx, pgx.Identifier{"equipment"}, equipmentCopyColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.SessionID, r.Name, r.EquipmentType, r.Flowrate, r.Pressure, r.Temperature}, nil
		}),
	)
}

const deleteSessionsBeyond = `DELETE FROM upload_sessions
WHERE id IN (
    SELECT id FROM upload_sessions
    WHERE user_id = $1
    ORDER BY uploaded_at DESC, id DESC
    OFFSET $2
)
RETURNING id`

// DeleteSessionsBeyond keeps the newest keep sessions of a user and returns
// the ids it removed. Equipment rows go with them by cascade.
func (q *Queries) DeleteSessionsBeyond(ctx context.Context, userID int64, keep int32) ([]int64, error) {
	rows, err := q.db.Query(ctx, deleteSessionsBeyond, userID, keep)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

const latestSession = `SELECT ` + sessionColumns + ` FROM upload_sessions
WHERE user_id = $1
ORDER BY uploaded_at DESC, id DESC
LIMIT 1`

func (q *Queries) LatestSession(ctx context.Context, userID int64) (UploadSessionRow, error) {
	return scanSession(q.db.QueryRow(ctx, latestSession, userID))
}

const getSession = `SELECT ` + sessionColumns + ` FROM upload_sessions
WHERE id = $1 AND user_id = $2`

func (q *Queries) GetSession(ctx context.Context, id, userID int64) (UploadSessionRow, error) {
	return scanSession(q.db.QueryRow(ctx, getSession, id, userID))
}

const listSessions = `SELECT ` + sessionColumns + ` FROM upload_sessions
WHERE user_id = $1
ORDER BY uploaded_at DESC, id DESC
LIMIT $2`

func (q *Queries) ListSessions(ctx context.Context, userID int64, limit int32) ([]UploadSessionRow, error) {
	rows, err := q.db.Query(ctx, listSessions, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (UploadSessionRow, error) {
		return scanSession(r)
	})
}

const listEquipment = `SELECT id, session_id, name, equipment_type, flowrate, pressure, temperature
FROM equipment
WHERE session_id = $1
ORDER BY id`

func (q *Queries) ListEquipment(ctx context.Context, sessionID int64) ([]EquipmentRow, error) {
	rows, err := q.db.Query(ctx, listEquipment, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (EquipmentRow, error) {
		var e EquipmentRow
		err := r.Scan(&e.ID, &e.SessionID, &e.Name, &e.EquipmentType, &e.Flowrate, &e.Pressure, &e.Temperature)
		return e, err
	})
}

const createUser = `INSERT INTO users (username, email, password_hash)
VALUES ($1, $2, $3)
RETURNING id, created_at`

func (q *Queries) CreateUser(ctx context.Context, username, email, passwordHash string) (UserRow, error) {
	u := UserRow{Username: username, Email: email, PasswordHash: passwordHash}
	err := q.db.QueryRow(ctx, createUser, username, email, passwordHash).Scan(&u.ID, &u.CreatedAt)
	return u, err
}

const userColumns = `id, username, email, password_hash, created_at`

func scanUser(row pgx.Row) (UserRow, error) {
	var u UserRow
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const getUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE username = $1`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (UserRow, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByUsername, username))
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (UserRow, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const userTaken = `SELECT
    EXISTS (SELECT 1 FROM users WHERE username = $1),
    EXISTS (SELECT 1 FROM users WHERE $2 <> '' AND lower(email) = lower($2))`

func (q *Queries) UserTaken(ctx context.Context, username, email string) (bool, bool, error) {
	var u, e bool
	err := q.db.QueryRow(ctx, userTaken, username, email).Scan(&u, &e)
	return u, e, err
}

const createToken = `INSERT INTO auth_tokens (token, user_id, created_at, expires_at)
VALUES ($1, $2, $3, $4)`

func (q *Queries) CreateToken(ctx context.Context, t TokenRow) error {
	_, err := q.db.Exec(ctx, createToken, t.Token, t.UserID, t.CreatedAt, t.ExpiresAt)
	return err
}

const getToken = `SELECT token, user_id, created_at, expires_at FROM auth_tokens WHERE token = $1`

func (q *Queries) GetToken(ctx context.Context, token string) (TokenRow, error) {
	var t TokenRow
	err := q.db.QueryRow(ctx, getToken, token).Scan(&t.Token, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
	return t, err
}

const deleteToken = `DELETE FROM auth_tokens WHERE token = $1`

func (q *Queries) DeleteToken(ctx context.Context, token string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteToken, token)
	return tag.RowsAffected(), err
}

const deleteExpiredTokens = `DELETE FROM auth_tokens WHERE expires_at <= $1`

func (q *Queries) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteExpiredTokens, now)
	return tag.RowsAffected(), err
}
