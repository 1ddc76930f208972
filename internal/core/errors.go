package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoFile is returned when an upload carries no file part.
	ErrNoFile = errors.New("no file provided")
	// ErrNotCSV is returned for filenames that do not end in .csv.
	ErrNotCSV = errors.New("file must be a csv")
	// ErrEmptyFile is returned when the input has no header row.
	ErrEmptyFile = errors.New("empty file: no header row")
	// ErrSessionNotFound is returned for unknown or foreign session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoSessions is returned when a user has nothing uploaded yet.
	ErrNoSessions = errors.New("no upload sessions")
)

// MissingColumnsError lists canonical columns that no header matched.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// InvalidCSVError wraps a csv.Reader failure.
type InvalidCSVError struct {
	Err error
}

func (e *InvalidCSVError) Error() string {
	return "invalid csv: " + e.Err.Error()
}

func (e *InvalidCSVError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err was caused by the uploaded content or
// request rather than by the server.
func IsClientError(err error) bool {
	var missing *MissingColumnsError
	var invalid *InvalidCSVError
	switch {
	case errors.As(err, &missing), errors.As(err, &invalid):
		return true
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrNotCSV), errors.Is(err, ErrEmptyFile):
		return true
	}
	return false
}
