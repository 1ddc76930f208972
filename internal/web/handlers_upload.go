package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/JonMunkholm/chemviz/internal/logging"
)

// multipartMemory is how much of a multipart form is buffered in memory;
// the remainder spills to temporary files.
const multipartMemory = 8 << 20

type uploadResponse struct {
	Message      string       `json:"message"`
	SessionID    int64        `json:"session_id"`
	RecordCount  int          `json:"record_count"`
	DroppedCount int          `json:"dropped_count"`
	Summary      core.Summary `json:"summary"`
}

// handleUpload stores the CSV in the multipart field "file" as a new session.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, _ := core.UserIDFromContext(r.Context())

	maxSize := s.cfg.Upload.MaxFileSize
	if r.ContentLength > maxSize {
		fail(w, r, fmt.Errorf("%w: %d bytes exceeds %d", errFileTooLarge, r.ContentLength, maxSize))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, fmt.Errorf("%w: %w", errFileTooLarge, err))
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			fail(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
			return
		}
		fail(w, r, fmt.Errorf("%w: read multipart form: %v", core.ErrNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		fail(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	ctx := withRequestMetadata(r.Context(), r)
	result, err := s.service.Upload(ctx, userID, header.Filename, file)
	if err != nil {
		fail(w, r, err)
		return
	}

	logging.WithFields(ctx,
		"filename", header.Filename,
		"session_id", result.Session.ID,
		"records", result.Session.RecordCount,
		"dropped", result.Dropped,
	).Info("upload stored")

	writeJSON(w, http.StatusCreated, uploadResponse{
		Message:      "File uploaded successfully",
		SessionID:    result.Session.ID,
		RecordCount:  result.Session.RecordCount,
		DroppedCount: result.Dropped,
		Summary:      result.Session.Summary,
	})
}
