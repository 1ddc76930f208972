package database

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, m *MemoryStore, name string) auth.User {
	t.Helper()
	u, err := m.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return u
}

func pumpRecords() []core.Equipment {
	return []core.Equipment{
		{Name: "Pump1", Type: core.TypePump, Flowrate: 10, Pressure: 5, Temperature: 20},
		{Name: "Pump2", Type: core.TypePump, Flowrate: 20, Pressure: 15, Temperature: 40},
	}
}

func TestMemoryStore_CreateSessionAssignsIDsInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := newUser(t, m, "alice")

	created, err := m.CreateSession(ctx, core.NewSession{
		UserID:     u.ID,
		Filename:   "pumps.csv",
		UploadedAt: time.Now().UTC(),
		Records:    pumpRecords(),
	}, 5)
	require.NoError(t, err)
	assert.Empty(t, created.Evicted)
	assert.Equal(t, 2, created.Session.RecordCount)
	assert.Equal(t, 15.0, created.Session.Summary.AvgFlowrate)

	rows, err := m.ListEquipment(ctx, created.Session.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Pump1", rows[0].Name)
	assert.Less(t, rows[0].ID, rows[1].ID)
	assert.Equal(t, created.Session.ID, rows[1].SessionID)

	assert.Equal(t, created.Session.Summary, core.Summarize(rows))
}

func TestMemoryStore_RetentionKeepsNewestFive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := newUser(t, m, "alice")
	other := newUser(t, m, "bob")

	_, err := m.CreateSession(ctx, core.NewSession{UserID: other.ID, Filename: "b.csv", UploadedAt: time.Now()}, 5)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 6; i++ {
		created, err := m.CreateSession(ctx, core.NewSession{
			UserID:     u.ID,
			Filename:   fmt.Sprintf("f%d.csv", i),
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
			Records:    pumpRecords(),
		}, 5)
		require.NoError(t, err)
		ids = append(ids, created.Session.ID)
		if i < 5 {
			assert.Empty(t, created.Evicted)
		} else {
			assert.Equal(t, []int64{ids[0]}, created.Evicted)
		}
	}

	sessions, err := m.ListSessions(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 5)
	for i, s := range sessions {
		assert.Equal(t, ids[5-i], s.ID, "position %d", i)
	}

	rows, err := m.ListEquipment(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, rows, "oldest session's equipment should be gone")

	_, err = m.GetSession(ctx, u.ID, ids[0])
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	bobs, err := m.ListSessions(ctx, other.ID, 10)
	require.NoError(t, err)
	assert.Len(t, bobs, 1, "other users are untouched")
}

func TestMemoryStore_ConcurrentUploadsKeepNewest(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := newUser(t, m, "alice")

	const uploads, keep = 20, 5
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     []int64
		evicted []int64
	)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := m.CreateSession(ctx, core.NewSession{
				UserID:     u.ID,
				Filename:   fmt.Sprintf("f%d.csv", i),
				UploadedAt: at,
				Records:    pumpRecords(),
			}, keep)
			assert.NoError(t, err)
			mu.Lock()
			ids = append(ids, created.Session.ID)
			evicted = append(evicted, created.Evicted...)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, ids, uploads)
	slices.Sort(ids)
	newest := ids[uploads-keep:]

	sessions, err := m.ListSessions(ctx, u.ID, uploads)
	require.NoError(t, err)
	require.Len(t, sessions, keep)
	for i, s := range sessions {
		assert.Equal(t, newest[keep-1-i], s.ID, "position %d", i)
	}

	slices.Sort(evicted)
	assert.Equal(t, ids[:uploads-keep], evicted, "every older session evicted exactly once")
	for _, id := range evicted {
		rows, err := m.ListEquipment(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, rows, "session %d equipment", id)
	}
}

func TestMemoryStore_RetentionTieBreakByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := newUser(t, m, "alice")
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 3; i++ {
		created, err := m.CreateSession(ctx, core.NewSession{UserID: u.ID, Filename: "same.csv", UploadedAt: at}, 2)
		require.NoError(t, err)
		ids = append(ids, created.Session.ID)
	}

	sessions, err := m.ListSessions(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)

	latest, err := m.LatestSession(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
}

func TestMemoryStore_SessionOwnership(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	alice := newUser(t, m, "alice")
	bob := newUser(t, m, "bob")

	created, err := m.CreateSession(ctx, core.NewSession{UserID: alice.ID, Filename: "a.csv", UploadedAt: time.Now()}, 5)
	require.NoError(t, err)

	_, err = m.GetSession(ctx, bob.ID, created.Session.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = m.LatestSession(ctx, bob.ID)
	assert.ErrorIs(t, err, core.ErrNoSessions)

	_, err = m.CreateSession(ctx, core.NewSession{UserID: 999, Filename: "x.csv"}, 5)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestMemoryStore_ReturnedSummaryIsDetached(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := newUser(t, m, "alice")

	created, err := m.CreateSession(ctx, core.NewSession{UserID: u.ID, Filename: "a.csv", Records: pumpRecords()}, 5)
	require.NoError(t, err)
	created.Session.Summary.TypeDistribution["Pump"] = 99

	again, err := m.GetSession(ctx, u.ID, created.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Summary.TypeDistribution["Pump"])
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := newUser(t, m, "alice")

	_, err := m.CreateUser(ctx, "alice", "other@example.com", "h")
	assert.ErrorIs(t, err, auth.ErrUserExists)
	_, err = m.CreateUser(ctx, "alice2", "ALICE@example.com", "h")
	assert.ErrorIs(t, err, auth.ErrUserExists)

	userTaken, emailTaken, err := m.UsernameOrEmailTaken(ctx, "alice", "nobody@example.com")
	require.NoError(t, err)
	assert.True(t, userTaken)
	assert.False(t, emailTaken)

	got, err := m.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = m.GetUserByID(ctx, 12345)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestMemoryStore_Tokens(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := newUser(t, m, "alice")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.CreateToken(ctx, auth.Token{Token: "live", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, m.CreateToken(ctx, auth.Token{Token: "stale", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}))
	assert.ErrorIs(t, m.CreateToken(ctx, auth.Token{Token: "x", UserID: 77}), auth.ErrUserNotFound)

	n, err := m.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tok, err := m.GetToken(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, u.ID, tok.UserID)

	require.NoError(t, m.DeleteToken(ctx, "live"))
	assert.ErrorIs(t, m.DeleteToken(ctx, "live"), auth.ErrTokenNotFound)
	_, err = m.GetToken(ctx, "stale")
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
}
