package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/JonMunkholm/chemviz/internal/logging"
)

// summaryResponse flattens the summary next to its session fields, which
// are null when the user has no sessions.
type summaryResponse struct {
	SessionID  *int64     `json:"session_id"`
	Filename   *string    `json:"filename"`
	UploadedAt *time.Time `json:"uploaded_at"`
	core.Summary
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Store   string                   `json:"store"`
	Cache   string                   `json:"cache"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// sessionParam reads the optional session_id query parameter.
func sessionParam(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("session_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: %q", errInvalidSessionID, raw)
	}
	return &id, nil
}

func userID(r *http.Request) int64 {
	id, _ := core.UserIDFromContext(r.Context())
	return id
}

// handleEquipment lists the rows of the requested or newest session.
func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	rows, err := s.service.Equipment(r.Context(), userID(r), sessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleSummary returns statistics for the requested or newest session.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	view, err := s.service.Summary(r.Context(), userID(r), sessionID)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := summaryResponse{Summary: view.Summary}
	if view.Session != nil {
		resp.SessionID = &view.Session.ID
		resp.Filename = &view.Session.Filename
		resp.UploadedAt = &view.Session.UploadedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory lists the user's retained sessions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.History(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleReport renders the PDF into memory first so a rendering failure
// can still produce a JSON error.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	sess, err := s.service.WriteReport(r.Context(), &buf, userID(r), sessionID)
	if err != nil {
		fail(w, r, err)
		return
	}

	logger := logging.WithFields(r.Context(), "session_id", sess.ID)
	logger.Info("report rendered", "bytes", buf.Len())

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="equipment_report_%d.pdf"`, sess.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Warn("report write failed", "error", err)
	}
}

// handleHealth probes the store and the optional cache.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: s.store.Name(), Cache: "disabled"}
	status := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		logging.FromContext(ctx).Error("health: store ping failed", "error", err)
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if s.cache != nil {
		resp.Cache = "ok"
		if err := s.cache.Ping(ctx); err != nil {
			// The cache is optional; summaries fall back to recomputation.
			logging.FromContext(ctx).Warn("health: cache ping failed", "error", err)
			resp.Cache = "degraded"
		}
	}
	if l := s.service.Limiter(); l != nil {
		resp.Uploads = l.Status()
	}

	writeJSON(w, status, resp)
}
