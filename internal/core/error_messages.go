package core

// error_messages.go maps technical errors to messages with a support code.
//
// Codes by category:
//
//	DB001-DB005   database constraints and connectivity
//	VAL001-VAL004 CSV content and request validation
//	FILE001-FILE006 file handling
//	UPL001-UPL003 upload processing
//	SES001        session lookup
//	AUTH001-AUTH002 authentication
//	RATE001       request throttling
//	ERR000        anything else; check the server log for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns precede general ones.

import "strings"

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Database
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Choose a different value",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Sign in again and retry",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},

	// Validation
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from CSV",
			Action:  "Include Equipment Name, Type, Flowrate, Pressure and Temperature headers",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with a header row",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid session_id",
		msg: UserMessage{
			Message: "Invalid session id",
			Action:  "Pass session_id as a whole number",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "Request body is not valid JSON",
			Action:  "Send a JSON object with the documented fields",
			Code:    "VAL004",
		},
	},

	// Files
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file must be a csv",
		msg: UserMessage{
			Message: "File must be a CSV",
			Action:  "Upload a file with a .csv extension",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file provided",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with a header row",
			Code:    "FILE005",
		},
	},
	{
		pattern: "multipart",
		msg: UserMessage{
			Message: "Upload request is malformed",
			Action:  "Send the file as multipart/form-data in a field named file",
			Code:    "FILE006",
		},
	},

	// Uploads
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL003",
		},
	},

	// Sessions
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Upload session not found",
			Action:  "Pick a session from your upload history",
			Code:    "SES001",
		},
	},
	{
		pattern: "no upload sessions",
		msg: UserMessage{
			Message: "No data available",
			Action:  "Upload a CSV file first",
			Code:    "SES001",
		},
	},

	// Authentication
	{
		pattern: "invalid credentials",
		msg: UserMessage{
			Message: "Invalid credentials",
			Action:  "Check your username and password",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "invalid token",
		msg: UserMessage{
			Message: "Authentication required",
			Action:  "Sign in again",
			Code:    "AUTH002",
		},
	},

	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}
