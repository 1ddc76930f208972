package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "duplicate key maps correctly",
			err:         errors.New(`ERROR: duplicate key value violates unique constraint "users_username_key"`),
			wantCode:    "DB001",
			wantMessage: "A record with this value already exists",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			wantCode:    "DB003",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "missing columns maps correctly",
			err:         &MissingColumnsError{Columns: []string{"flowrate"}},
			wantCode:    "VAL001",
			wantMessage: "Required column is missing from CSV",
		},
		{
			name:        "wrapped not csv maps correctly",
			err:         fmt.Errorf("data.xlsx: %w", ErrNotCSV),
			wantCode:    "FILE002",
			wantMessage: "File must be a CSV",
		},
		{
			name:        "no file maps correctly",
			err:         ErrNoFile,
			wantCode:    "FILE004",
			wantMessage: "No file provided",
		},
		{
			name:        "empty file maps correctly",
			err:         ErrEmptyFile,
			wantCode:    "FILE005",
			wantMessage: "The uploaded file is empty",
		},
		{
			name:        "limiter saturation maps correctly",
			err:         ErrTooManyUploads,
			wantCode:    "UPL001",
			wantMessage: "System is busy processing other uploads",
		},
		{
			name:        "session not found maps correctly",
			err:         ErrSessionNotFound,
			wantCode:    "SES001",
			wantMessage: "Upload session not found",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError().Code = %v, want %v", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError().Message = %v, want %v", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestMapError_CaseInsensitive(t *testing.T) {
	upper := MapError(errors.New("CONNECTION REFUSED"))
	lower := MapError(errors.New("connection refused"))
	if upper.Code != lower.Code {
		t.Errorf("case sensitivity issue: %v != %v", upper.Code, lower.Code)
	}
}

func TestErrorPatterns_HaveCodes(t *testing.T) {
	for _, ep := range errorPatterns {
		if ep.pattern != strings.ToLower(ep.pattern) {
			t.Errorf("pattern %q must be lowercase", ep.pattern)
		}
		if ep.msg.Code == "" || ep.msg.Message == "" || ep.msg.Action == "" {
			t.Errorf("pattern %q has incomplete message %+v", ep.pattern, ep.msg)
		}
	}
}
