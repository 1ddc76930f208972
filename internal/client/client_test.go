package client_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/client"
	"github.com/JonMunkholm/chemviz/internal/config"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/JonMunkholm/chemviz/internal/database"
	"github.com/JonMunkholm/chemviz/internal/report"
	"github.com/JonMunkholm/chemviz/internal/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const sampleCSV = "Equipment Name,Type,Flowrate,Pressure,Temperature\n" +
	"Pump-1,Pump,120,5.2,110\n" +
	"Valve-1,Valve,60,4.1,105\n" +
	"Pump-2,pump,140,5.6,118\n"

// newServer runs the full API against an in-memory store.
func newServer(t *testing.T) *client.Client {
	t.Helper()
	env := map[string]string{
		"DATABASE_URL":       "memory://",
		"RATE_LIMIT_ENABLED": "false",
	}
	cfg, err := config.LoadFrom(func(k string) string { return env[k] })
	require.NoError(t, err)

	store := database.NewMemoryStore()
	svc := core.NewService(store, core.ServiceConfig{
		Retention:    cfg.Retention.Keep,
		HistoryLimit: cfg.Retention.HistoryLimit,
		Renderer:     report.NewPDFRenderer(cfg.Report.RowLimit),
	})
	authSvc := auth.NewService(store, auth.Config{BcryptCost: bcrypt.MinCost})
	srv := web.NewServer(cfg, web.Deps{Service: svc, Auth: authSvc, Store: store})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return client.New(ts.URL+"/", client.WithHTTPClient(ts.Client()))
}

func registerUser(t *testing.T, c *client.Client, username string) client.Session {
	t.Helper()
	sess, err := c.Register(context.Background(), auth.RegisterInput{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "correct-horse",
		ConfirmPassword: "correct-horse",
	})
	require.NoError(t, err)
	require.True(t, sess.Valid())
	return sess
}

func TestRegisterLoginLogout(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	reg := registerUser(t, c, "alice")
	assert.Equal(t, "alice", reg.User.Username)
	assert.NotZero(t, reg.User.ID)

	sess, err := c.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, reg.Token, sess.Token)
	assert.Equal(t, reg.User.ID, sess.User.ID)

	require.NoError(t, c.Logout(ctx, sess))

	_, err = c.History(ctx, sess)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, "AUTH002", apiErr.Code)

	// The registration token is still valid.
	_, err = c.History(ctx, reg)
	assert.NoError(t, err)
}

func TestLogin_WrongPassword(t *testing.T) {
	c := newServer(t)
	registerUser(t, c, "alice")

	_, err := c.Login(context.Background(), "alice", "wrong")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "AUTH001", apiErr.Code)
}

func TestRegister_FieldErrors(t *testing.T) {
	c := newServer(t)

	_, err := c.Register(context.Background(), auth.RegisterInput{
		Username:        "bob",
		Email:           "not-an-email",
		Password:        "correct-horse",
		ConfirmPassword: "different",
	})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Fields, "email")
	assert.Contains(t, apiErr.Fields, "confirm_password")
}

func TestNotLoggedIn(t *testing.T) {
	c := client.New("http://127.0.0.1:1")
	ctx := context.Background()

	assert.ErrorIs(t, c.Logout(ctx, client.Session{}), client.ErrNotLoggedIn)
	_, err := c.Upload(ctx, client.Session{}, "x.csv", strings.NewReader(sampleCSV))
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
	_, err = c.DownloadReport(ctx, client.Session{}, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}

func TestUploadAndDashboard(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()
	sess := registerUser(t, c, "alice")

	path := filepath.Join(t.TempDir(), "plant.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	res, err := c.UploadCSV(ctx, sess, path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RecordCount)
	assert.Zero(t, res.DroppedCount)
	assert.Equal(t, map[string]int{"Pump": 2, "Valve": 1}, res.Summary.TypeDistribution)

	dash, err := c.LoadDashboard(ctx, sess)
	require.NoError(t, err)
	require.Len(t, dash.Equipment, 3)
	assert.Equal(t, "Pump-1", dash.Equipment[0].Name)
	assert.Equal(t, core.TypePump, dash.Equipment[2].Type)

	require.NotNil(t, dash.Summary.SessionID)
	assert.Equal(t, res.SessionID, *dash.Summary.SessionID)
	require.NotNil(t, dash.Summary.Filename)
	assert.Equal(t, "plant.csv", *dash.Summary.Filename)
	assert.Equal(t, 3, dash.Summary.TotalCount)
	assert.InDelta(t, 320.0/3, dash.Summary.AvgFlowrate, 1e-9)

	require.Len(t, dash.History, 1)
	assert.Equal(t, res.SessionID, dash.History[0].ID)
	assert.Equal(t, 3, dash.History[0].RecordCount)
}

func TestSpecificSession(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()
	sess := registerUser(t, c, "alice")

	first, err := c.Upload(ctx, sess, "first.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	_, err = c.Upload(ctx, sess, "second.csv", strings.NewReader(
		"Equipment Name,Type,Flowrate,Pressure,Temperature\nHX-1,HeatExchanger,10,2,300\n"))
	require.NoError(t, err)

	latest, err := c.Summary(ctx, sess, nil)
	require.NoError(t, err)
	assert.Equal(t, "second.csv", *latest.Filename)

	older, err := c.Summary(ctx, sess, &first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "first.csv", *older.Filename)

	rows, err := c.Equipment(ctx, sess, &first.SessionID)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	missing := int64(9999)
	_, err = c.Equipment(ctx, sess, &missing)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestUpload_Rejected(t *testing.T) {
	c := newServer(t)
	sess := registerUser(t, c, "alice")

	_, err := c.Upload(context.Background(), sess, "bad.csv", strings.NewReader("Name,Type\nx,Pump\n"))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "VAL001", apiErr.Code)
	assert.NotEmpty(t, apiErr.Detail)
	assert.Contains(t, apiErr.Error(), "[VAL001]")
}

func TestEmptyDashboard(t *testing.T) {
	c := newServer(t)
	sess := registerUser(t, c, "alice")

	dash, err := c.LoadDashboard(context.Background(), sess)
	require.NoError(t, err)
	assert.Empty(t, dash.Equipment)
	assert.Empty(t, dash.History)
	assert.Nil(t, dash.Summary.SessionID)
	assert.Zero(t, dash.Summary.TotalCount)
}

func TestDownloadReport(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()
	sess := registerUser(t, c, "alice")

	res, err := c.Upload(ctx, sess, "plant.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	name, err := c.DownloadReport(ctx, sess, &res.SessionID, &buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	assert.Equal(t, fmt.Sprintf("equipment_report_%d.pdf", res.SessionID), name)
}

func TestDownloadReport_NoSessions(t *testing.T) {
	c := newServer(t)
	sess := registerUser(t, c, "alice")

	var buf bytes.Buffer
	_, err := c.DownloadReport(context.Background(), sess, nil, &buf)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Zero(t, buf.Len())
}

func TestDecodeError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := client.New(ts.URL)
	_, err := c.Login(context.Background(), "a", "b")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestLoadDashboard_FirstErrorWins(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/history" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/equipment" {
			_, _ = w.Write([]byte("[]"))
			return
		}
		_, _ = w.Write([]byte("{}"))
	}))
	defer ts.Close()

	c := client.New(ts.URL)
	_, err := c.LoadDashboard(context.Background(), client.Session{Token: "t"})
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestSessionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	_, err := client.LoadSession(path)
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)

	want := client.Session{Token: "tok", User: auth.User{ID: 7, Username: "alice", Email: "a@example.com"}}
	require.NoError(t, client.SaveSession(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := client.LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, client.ClearSession(path))
	require.NoError(t, client.ClearSession(path))
	_, err = client.LoadSession(path)
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}

func TestLoadSession_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := client.LoadSession(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, client.ErrNotLoggedIn)
}
