package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Store is the PostgreSQL implementation of core.SessionStore and auth.Store.
type Store struct {
	pool Pool
	q    *Queries
}

var (
	_ core.SessionStore = (*Store)(nil)
	_ auth.Store        = (*Store)(nil)
)

// NewStore wraps pool.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool, q: New(pool)}
}

// Name identifies the backend in health output.
func (s *Store) Name() string { return "postgres" }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// CreateSession runs in one transaction: lock the user row, insert the
// session with its summary, COPY the equipment rows, then delete sessions
// beyond the newest keep. Concurrent uploads by the same user queue on the
// row lock.
func (s *Store) CreateSession(ctx context.Context, in core.NewSession, keep int) (core.CreatedSession, error) {
	if keep <= 0 {
		keep = core.DefaultRetention
	}

	summary := core.Summarize(in.Records)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return core.CreatedSession{}, fmt.Errorf("encode summary: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.CreatedSession{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	qtx := s.q.WithTx(tx)

	if err := qtx.LockUser(ctx, in.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.CreatedSession{}, auth.ErrUserNotFound
		}
		return core.CreatedSession{}, fmt.Errorf("lock user: %w", err)
	}

	id, err := qtx.InsertSession(ctx, InsertSessionParams{
		UserID:      in.UserID,
		Filename:    in.Filename,
		UploadedAt:  in.UploadedAt,
		RecordCount: int32(len(in.Records)),
		SummaryJSON: summaryJSON,
	})
	if err != nil {
		return core.CreatedSession{}, fmt.Errorf("insert session: %w", err)
	}

	if len(in.Records) > 0 {
		rows := make([]EquipmentRow, len(in.Records))
		for i, r := range in.Records {
			rows[i] = EquipmentRow{
				SessionID:     id,
				Name:          r.Name,
				EquipmentType: string(r.Type),
				Flowrate:      r.Flowrate,
				Pressure:      r.Pressure,
				Temperature:   r.Temperature,
			}
		}
		n, err := qtx.CopyEquipment(ctx, rows)
		if err != nil {
			return core.CreatedSession{}, fmt.Errorf("copy equipment: %w", err)
		}
		if n != int64(len(rows)) {
			return core.CreatedSession{}, fmt.Errorf("copy equipment: wrote %d of %d rows", n, len(rows))
		}
	}

	evicted, err := qtx.DeleteSessionsBeyond(ctx, in.UserID, int32(keep))
	if err != nil {
		return core.CreatedSession{}, fmt.Errorf("apply retention: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.CreatedSession{}, fmt.Errorf("commit: %w", err)
	}

	return core.CreatedSession{
		Session: core.Session{
			ID:          id,
			UserID:      in.UserID,
			Filename:    in.Filename,
			UploadedAt:  in.UploadedAt,
			RecordCount: len(in.Records),
			Summary:     summary,
		},
		Evicted: evicted,
	}, nil
}

// LatestSession returns core.ErrNoSessions when the user has none.
func (s *Store) LatestSession(ctx context.Context, userID int64) (core.Session, error) {
	row, err := s.q.LatestSession(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Session{}, core.ErrNoSessions
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("latest session: %w", err)
	}
	return toSession(row)
}

// GetSession returns core.ErrSessionNotFound for ids the user does not own.
func (s *Store) GetSession(ctx context.Context, userID, sessionID int64) (core.Session, error) {
	row, err := s.q.GetSession(ctx, sessionID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Session{}, core.ErrSessionNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	return toSession(row)
}

func (s *Store) ListSessions(ctx context.Context, userID int64, limit int) ([]core.Session, error) {
	rows, err := s.q.ListSessions(ctx, userID, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]core.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := toSession(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) ListEquipment(ctx context.Context, sessionID int64) ([]core.Equipment, error) {
	rows, err := s.q.ListEquipment(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	out := make([]core.Equipment, len(rows))
	for i, r := range rows {
		out[i] = core.Equipment{
			ID:          r.ID,
			SessionID:   r.SessionID,
			Name:        r.Name,
			Type:        core.EquipmentType(r.EquipmentType),
			Flowrate:    r.Flowrate,
			Pressure:    r.Pressure,
			Temperature: r.Temperature,
		}
	}
	return out, nil
}

func toSession(r UploadSessionRow) (core.Session, error) {
	sess := core.Session{
		ID:          r.ID,
		UserID:      r.UserID,
		Filename:    r.Filename,
		UploadedAt:  r.UploadedAt.UTC(),
		RecordCount: int(r.RecordCount),
	}
	if err := json.Unmarshal(r.SummaryJSON, &sess.Summary); err != nil {
		return core.Session{}, fmt.Errorf("decode summary for session %d: %w", r.ID, err)
	}
	if sess.Summary.TypeDistribution == nil {
		sess.Summary.TypeDistribution = map[string]int{}
	}
	return sess, nil
}

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (auth.User, error) {
	row, err := s.q.CreateUser(ctx, username, email, passwordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return auth.User{}, auth.ErrUserExists
		}
		return auth.User{}, fmt.Errorf("create user: %w", err)
	}
	return toUser(row), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	row, err := s.q.GetUserByUsername(ctx, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("get user: %w", err)
	}
	return toUser(row), nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (auth.User, error) {
	row, err := s.q.GetUserByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("get user: %w", err)
	}
	return toUser(row), nil
}

func (s *Store) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, bool, error) {
	u, e, err := s.q.UserTaken(ctx, username, email)
	if err != nil {
		return false, false, fmt.Errorf("check user: %w", err)
	}
	return u, e, nil
}

func toUser(r UserRow) auth.User {
	return auth.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Store) CreateToken(ctx context.Context, t auth.Token) error {
	if err := s.q.CreateToken(ctx, TokenRow(t)); err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, token string) (auth.Token, error) {
	row, err := s.q.GetToken(ctx, token)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Token{}, auth.ErrTokenNotFound
	}
	if err != nil {
		return auth.Token{}, fmt.Errorf("get token: %w", err)
	}
	return auth.Token(row), nil
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	n, err := s.q.DeleteToken(ctx, token)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n == 0 {
		return auth.ErrTokenNotFound
	}
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.q.DeleteExpiredTokens(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return n, nil
}
