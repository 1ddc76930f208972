// Package client is a typed HTTP client for the equipment API. Every
// authenticated call takes the caller's Session explicitly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/core"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout applies when no http.Client is supplied.
const DefaultTimeout = 60 * time.Second

// ErrNotLoggedIn is returned for authenticated calls without a token.
var ErrNotLoggedIn = errors.New("not logged in")

// Session is the logged-in state returned by Login and Register.
type Session struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

// Valid reports whether the session carries a token.
func (s Session) Valid() bool { return s.Token != "" }

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Code    string
	Detail  string
	// Fields holds per-field registration errors.
	Fields map[string]string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error %d: %s", e.Status, e.Message)
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	return b.String()
}

// Unauthorized reports whether the server rejected the token.
func (e *APIError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

// UploadResult is the response to UploadCSV.
type UploadResult struct {
	Message      string       `json:"message"`
	SessionID    int64        `json:"session_id"`
	RecordCount  int          `json:"record_count"`
	DroppedCount int          `json:"dropped_count"`
	Summary      core.Summary `json:"summary"`
}

// SummaryResult is a summary with its session fields, which are nil when
// the user has not uploaded anything.
type SummaryResult struct {
	SessionID  *int64     `json:"session_id"`
	Filename   *string    `json:"filename"`
	UploadedAt *time.Time `json:"uploaded_at"`
	core.Summary
}

// Dashboard is everything the main screen shows.
type Dashboard struct {
	Equipment []core.Equipment
	Summary   SummaryResult
	History   []core.Session
}

// Client talks to one server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var sess Session
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", Session{}, map[string]string{
		"username": username,
		"password": password,
	}, &sess)
	return sess, err
}

// Register creates an account and returns its session. Field problems come
// back as an *APIError with Fields set.
func (c *Client) Register(ctx context.Context, in auth.RegisterInput) (Session, error) {
	var sess Session
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", Session{}, in, &sess)
	return sess, err
}

// Logout revokes the session's token.
func (c *Client) Logout(ctx context.Context, sess Session) error {
	if !sess.Valid() {
		return ErrNotLoggedIn
	}
	return c.doJSON(ctx, http.MethodPost, "/api/auth/logout", sess, nil, nil)
}

// UploadCSV uploads the file at path.
func (c *Client) UploadCSV(ctx context.Context, sess Session, path string) (UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.Upload(ctx, sess, filepath.Base(path), f)
}

// Upload sends r as the multipart field "file" named filename.
func (c *Client) Upload(ctx context.Context, sess Session, filename string, r io.Reader) (UploadResult, error) {
	if !sess.Valid() {
		return UploadResult{}, ErrNotLoggedIn
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", sess, &body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	return out, c.send(req, &out)
}

// Equipment lists rows of the given session, or the newest when id is nil.
func (c *Client) Equipment(ctx context.Context, sess Session, sessionID *int64) ([]core.Equipment, error) {
	var rows []core.Equipment
	err := c.doJSON(ctx, http.MethodGet, withSession("/api/equipment", sessionID), sess, nil, &rows)
	return rows, err
}

// Summary returns statistics for the given session, or the newest when id is nil.
func (c *Client) Summary(ctx context.Context, sess Session, sessionID *int64) (SummaryResult, error) {
	var out SummaryResult
	err := c.doJSON(ctx, http.MethodGet, withSession("/api/summary", sessionID), sess, nil, &out)
	return out, err
}

// History lists retained sessions, newest first.
func (c *Client) History(ctx context.Context, sess Session) ([]core.Session, error) {
	var out []core.Session
	err := c.doJSON(ctx, http.MethodGet, "/api/history", sess, nil, &out)
	return out, err
}

// DownloadReport streams the PDF into w and returns the server's filename.
func (c *Client) DownloadReport(ctx context.Context, sess Session, sessionID *int64, w io.Writer) (string, error) {
	if !sess.Valid() {
		return "", ErrNotLoggedIn
	}
	req, err := c.newRequest(ctx, http.MethodGet, withSession("/api/report/pdf", sessionID), sess, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download report: %w", err)
	}
	return reportFilename(resp.Header.Get("Content-Disposition")), nil
}

// LoadDashboard fetches equipment, summary and history concurrently. The
// first failure cancels the other requests.
func (c *Client) LoadDashboard(ctx context.Context, sess Session) (Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := c.Equipment(ctx, sess, nil)
		d.Equipment = rows
		return err
	})
	g.Go(func() error {
		sum, err := c.Summary(ctx, sess, nil)
		d.Summary = sum
		return err
	})
	g.Go(func() error {
		hist, err := c.History(ctx, sess)
		d.History = hist
		return err
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func withSession(path string, sessionID *int64) string {
	if sessionID == nil {
		return path
	}
	return path + "?" + url.Values{"session_id": {strconv.FormatInt(*sessionID, 10)}}.Encode()
}

func reportFilename(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return "equipment_report.pdf"
}

// newRequest builds a request, attaching the token when sess has one.
func (c *Client) newRequest(ctx context.Context, method, path string, sess Session, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if sess.Valid() {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}
	return req, nil
}

// doJSON sends in as JSON (when non-nil) and decodes the reply into out
// (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, sess Session, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, sess, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// decodeError reads either error shape the server produces.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var body struct {
		Error  string            `json:"error"`
		Code   string            `json:"code"`
		Detail string            `json:"detail"`
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	if body.Error != "" {
		apiErr.Message = body.Error
	}
	apiErr.Code = body.Code
	apiErr.Detail = body.Detail
	if len(body.Errors) > 0 {
		apiErr.Fields = body.Errors
		apiErr.Message = "registration failed"
	}
	return apiErr
}
