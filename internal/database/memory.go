package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/core"
)

// MemoryStore keeps everything in process. A single mutex makes every
// operation atomic, so CreateSession and its retention pass cannot interleave
// with another upload.
type MemoryStore struct {
	mu sync.RWMutex

	nextUserID      int64
	nextSessionID   int64
	nextEquipmentID int64

	users     map[int64]auth.User
	tokens    map[string]auth.Token
	sessions  map[int64]core.Session
	equipment map[int64][]core.Equipment
}

var (
	_ core.SessionStore = (*MemoryStore)(nil)
	_ auth.Store        = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]auth.User),
		tokens:    make(map[string]auth.Token),
		sessions:  make(map[int64]core.Session),
		equipment: make(map[int64][]core.Equipment),
	}
}

// Name identifies the backend in health output.
func (m *MemoryStore) Name() string { return "memory" }

// Ping reports only context cancellation.
func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (m *MemoryStore) Close() {}

func (m *MemoryStore) CreateSession(ctx context.Context, in core.NewSession, keep int) (core.CreatedSession, error) {
	if err := ctx.Err(); err != nil {
		return core.CreatedSession{}, err
	}
	if keep <= 0 {
		keep = core.DefaultRetention
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[in.UserID]; !ok {
		return core.CreatedSession{}, auth.ErrUserNotFound
	}

	m.nextSessionID++
	sess := core.Session{
		ID:          m.nextSessionID,
		UserID:      in.UserID,
		Filename:    in.Filename,
		UploadedAt:  in.UploadedAt,
		RecordCount: len(in.Records),
		Summary:     core.Summarize(in.Records),
	}

	rows := make([]core.Equipment, len(in.Records))
	for i, r := range in.Records {
		m.nextEquipmentID++
		r.ID = m.nextEquipmentID
		r.SessionID = sess.ID
		rows[i] = r
	}

	m.sessions[sess.ID] = sess
	m.equipment[sess.ID] = rows

	var evicted []int64
	for i, s := range m.userSessionsLocked(in.UserID) {
		if i < keep {
			continue
		}
		delete(m.sessions, s.ID)
		delete(m.equipment, s.ID)
		evicted = append(evicted, s.ID)
	}

	return core.CreatedSession{Session: copySession(sess), Evicted: evicted}, nil
}

// userSessionsLocked orders by uploaded_at DESC, id DESC.
func (m *MemoryStore) userSessionsLocked(userID int64) []core.Session {
	var out []core.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MemoryStore) LatestSession(ctx context.Context, userID int64) (core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.userSessionsLocked(userID)
	if len(all) == 0 {
		return core.Session{}, core.ErrNoSessions
	}
	return copySession(all[0]), nil
}

func (m *MemoryStore) GetSession(ctx context.Context, userID, sessionID int64) (core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return core.Session{}, core.ErrSessionNotFound
	}
	return copySession(s), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, userID int64, limit int) ([]core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.userSessionsLocked(userID)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	for i := range all {
		all[i] = copySession(all[i])
	}
	return all, nil
}

func (m *MemoryStore) ListEquipment(ctx context.Context, sessionID int64) ([]core.Equipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.equipment[sessionID]
	return append([]core.Equipment(nil), rows...), nil
}

// copySession detaches the distribution map from the stored value.
func copySession(s core.Session) core.Session {
	dist := make(map[string]int, len(s.Summary.TypeDistribution))
	for k, v := range s.Summary.TypeDistribution {
		dist[k] = v
	}
	s.Summary.TypeDistribution = dist
	return s
}

func (m *MemoryStore) CreateUser(ctx context.Context, username, email, passwordHash string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userTaken, emailTaken := m.takenLocked(username, email)
	if userTaken || emailTaken {
		return auth.User{}, auth.ErrUserExists
	}

	m.nextUserID++
	u := auth.User{
		ID:           m.nextUserID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) takenLocked(username, email string) (bool, bool) {
	var userTaken, emailTaken bool
	for _, u := range m.users {
		if u.Username == username {
			userTaken = true
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			emailTaken = true
		}
	}
	return userTaken, emailTaken
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, e := m.takenLocked(username, email)
	return u, e, nil
}

func (m *MemoryStore) CreateToken(ctx context.Context, t auth.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[t.UserID]; !ok {
		return auth.ErrUserNotFound
	}
	m.tokens[t.Token] = t
	return nil
}

func (m *MemoryStore) GetToken(ctx context.Context, token string) (auth.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[token]
	if !ok {
		return auth.Token{}, auth.ErrTokenNotFound
	}
	return t, nil
}

func (m *MemoryStore) DeleteToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		return auth.ErrTokenNotFound
	}
	delete(m.tokens, token)
	return nil
}

func (m *MemoryStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if t.Expired(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}
