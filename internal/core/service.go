package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// DefaultUploadTimeout bounds parsing and persisting a single upload.
const DefaultUploadTimeout = 2 * time.Minute

// DefaultRetention is the number of sessions kept per user.
const DefaultRetention = 5

// SessionStore persists upload sessions and their equipment rows.
type SessionStore interface {
	// CreateSession stores the session and its rows, writes the summary and
	// applies retention for the user as one atomic unit.
	CreateSession(ctx context.Context, in NewSession, keep int) (CreatedSession, error)
	LatestSession(ctx context.Context, userID int64) (Session, error)
	GetSession(ctx context.Context, userID, sessionID int64) (Session, error)
	ListSessions(ctx context.Context, userID int64, limit int) ([]Session, error)
	ListEquipment(ctx context.Context, sessionID int64) ([]Equipment, error)
}

// SummaryMemo memoizes summaries recomputed from persisted rows.
type SummaryMemo interface {
	Get(ctx context.Context, sessionID int64) (Summary, bool, error)
	Set(ctx context.Context, sessionID int64, s Summary) error
	Evict(ctx context.Context, sessionIDs ...int64) error
}

// ReportRenderer writes a document for one session.
type ReportRenderer interface {
	Render(w io.Writer, data ReportData) error
}

// ReportData is everything a report needs; nothing is recomputed from it.
type ReportData struct {
	Session   Session
	Equipment []Equipment
	Summary   Summary
}

// SummaryView is a summary optionally tied to a session. Session is nil when
// the user has not uploaded anything.
type SummaryView struct {
	Session *Session
	Summary Summary
}

// ServiceConfig tunes a Service. Zero values fall back to defaults.
type ServiceConfig struct {
	Retention    int
	HistoryLimit int
	Aliases      Aliases
	Limiter      *UploadLimiter
	Memo         SummaryMemo
	Renderer     ReportRenderer
	Timeout      time.Duration
	Now          func() time.Time
}

// Service coordinates parsing, persistence, summaries and reports.
type Service struct {
	store        SessionStore
	memo         SummaryMemo
	renderer     ReportRenderer
	limiter      *UploadLimiter
	aliases      Aliases
	retention    int
	historyLimit int
	timeout      time.Duration
	now          func() time.Time
}

// NewService creates a Service backed by store.
func NewService(store SessionStore, cfg ServiceConfig) *Service {
	s := &Service{
		store:        store,
		memo:         cfg.Memo,
		renderer:     cfg.Renderer,
		limiter:      cfg.Limiter,
		aliases:      cfg.Aliases,
		retention:    cfg.Retention,
		historyLimit: cfg.HistoryLimit,
		timeout:      cfg.Timeout,
		now:          cfg.Now,
	}
	if s.aliases == nil {
		s.aliases = DefaultAliases()
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.historyLimit <= 0 {
		s.historyLimit = s.retention
	}
	if s.timeout <= 0 {
		s.timeout = DefaultUploadTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Limiter returns the upload limiter, or nil when uploads are unbounded.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// Upload parses a CSV and stores it as a new session for userID.
// Filenames without a .csv extension are rejected before reading r.
func (s *Service) Upload(ctx context.Context, userID int64, filename string, r io.Reader) (UploadResult, error) {
	if filename == "" {
		return UploadResult{}, ErrNoFile
	}
	if !IsCSVFilename(filename) {
		return UploadResult{}, fmt.Errorf("%s: %w", filename, ErrNotCSV)
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return UploadResult{}, err
		}
		defer s.limiter.Release()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	counter := NewCountingReader(r)
	parsed, err := ParseCSV(counter, s.aliases)
	if err != nil {
		return UploadResult{}, fmt.Errorf("parse %s: %w", filename, err)
	}

	created, err := s.store.CreateSession(ctx, NewSession{
		UserID:     userID,
		Filename:   filename,
		UploadedAt: s.now().UTC(),
		Records:    parsed.Records,
	}, s.retention)
	if err != nil {
		return UploadResult{}, fmt.Errorf("store session: %w", err)
	}

	s.evict(ctx, created.Evicted)

	slog.InfoContext(ctx, "upload stored",
		"user_id", userID,
		"ip", IPAddressFromContext(ctx),
		"session_id", created.Session.ID,
		"filename", filename,
		"bytes", counter.BytesRead(),
		"records", len(parsed.Records),
		"dropped", parsed.Dropped,
		"evicted", len(created.Evicted),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return UploadResult{Session: created.Session, Dropped: parsed.Dropped}, nil
}

// Equipment lists a session's rows in insertion order. A nil sessionID
// selects the newest session; a user with no sessions gets an empty list.
func (s *Service) Equipment(ctx context.Context, userID int64, sessionID *int64) ([]Equipment, error) {
	sess, err := s.resolveSession(ctx, userID, sessionID)
	if errors.Is(err, ErrNoSessions) {
		return []Equipment{}, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListEquipment(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	if rows == nil {
		rows = []Equipment{}
	}
	return rows, nil
}

// Summary recomputes a session's statistics from its persisted rows,
// consulting the memo first when one is configured.
func (s *Service) Summary(ctx context.Context, userID int64, sessionID *int64) (SummaryView, error) {
	sess, err := s.resolveSession(ctx, userID, sessionID)
	if errors.Is(err, ErrNoSessions) {
		return SummaryView{Summary: EmptySummary()}, nil
	}
	if err != nil {
		return SummaryView{}, err
	}

	sum, err := s.summaryFor(ctx, sess.ID)
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryView{Session: &sess, Summary: sum}, nil
}

// History returns the user's newest sessions, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]Session, error) {
	sessions, err := s.store.ListSessions(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// ReportData gathers a session, its rows and summary. Unlike the read
// endpoints it fails with ErrNoSessions when there is nothing to report.
func (s *Service) ReportData(ctx context.Context, userID int64, sessionID *int64) (ReportData, error) {
	sess, err := s.resolveSession(ctx, userID, sessionID)
	if err != nil {
		return ReportData{}, err
	}
	rows, err := s.store.ListEquipment(ctx, sess.ID)
	if err != nil {
		return ReportData{}, fmt.Errorf("list equipment: %w", err)
	}
	return ReportData{Session: sess, Equipment: rows, Summary: s.memoized(ctx, sess.ID, rows)}, nil
}

// WriteReport renders the report for a session into w.
func (s *Service) WriteReport(ctx context.Context, w io.Writer, userID int64, sessionID *int64) (Session, error) {
	if s.renderer == nil {
		return Session{}, errors.New("report renderer not configured")
	}
	data, err := s.ReportData(ctx, userID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := s.renderer.Render(w, data); err != nil {
		return Session{}, fmt.Errorf("render report: %w", err)
	}
	return data.Session, nil
}

func (s *Service) resolveSession(ctx context.Context, userID int64, sessionID *int64) (Session, error) {
	if sessionID != nil {
		return s.store.GetSession(ctx, userID, *sessionID)
	}
	return s.store.LatestSession(ctx, userID)
}

// summaryFor returns the memoized summary or recomputes it from rows.
func (s *Service) summaryFor(ctx context.Context, sessionID int64) (Summary, error) {
	if s.memo != nil {
		sum, ok, err := s.memo.Get(ctx, sessionID)
		if err != nil {
			slog.WarnContext(ctx, "summary memo read failed", "session_id", sessionID, "error", err)
		} else if ok {
			return sum, nil
		}
	}

	rows, err := s.store.ListEquipment(ctx, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("list equipment: %w", err)
	}
	return s.memoized(ctx, sessionID, rows), nil
}

// memoized computes the summary from rows and stores it in the memo.
func (s *Service) memoized(ctx context.Context, sessionID int64, rows []Equipment) Summary {
	sum := Summarize(rows)
	if s.memo != nil {
		if err := s.memo.Set(ctx, sessionID, sum); err != nil {
			slog.WarnContext(ctx, "summary memo write failed", "session_id", sessionID, "error", err)
		}
	}
	return sum
}

func (s *Service) evict(ctx context.Context, ids []int64) {
	if s.memo == nil || len(ids) == 0 {
		return
	}
	if err := s.memo.Evict(ctx, ids...); err != nil {
		slog.WarnContext(ctx, "summary memo eviction failed", "session_ids", ids, "error", err)
	}
}
