package web

// errors.go provides unified error response handling for the API.
//
// The technical error is logged with the request id; the client receives
// the mapped message, an action and a support code. Server errors never
// expose the technical text.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/JonMunkholm/chemviz/internal/logging"
)

var (
	errInvalidSessionID = errors.New("invalid session_id")
	errInvalidBody      = errors.New("invalid request body")
	errFileTooLarge     = errors.New("file too large")
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	// Detail carries the specific client-side problem, such as which
	// columns are missing. It is omitted for server errors.
	Detail string `json:"detail,omitempty"`
}

// statusFor classifies err into an HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrTooManyUploads), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrNoSessions):
		return http.StatusNotFound
	case errors.As(err, &tooLarge),
		errors.Is(err, errFileTooLarge),
		errors.Is(err, errInvalidSessionID),
		errors.Is(err, errInvalidBody),
		core.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its mapped JSON form.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if status < http.StatusInternalServerError {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail classifies and responds in one step.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err, statusFor(err))
}

// respondUnauthorized is handed to the token middleware.
func (s *Server) respondUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err, http.StatusUnauthorized)
}
