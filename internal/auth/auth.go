// Package auth registers users, checks passwords and manages bearer tokens.
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials never says whether the username or password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers missing, unknown and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserNotFound is returned by stores for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenNotFound is returned by stores for unknown tokens.
	ErrTokenNotFound = errors.New("token not found")
	// ErrUserExists is returned by stores when a unique constraint trips.
	ErrUserExists = errors.New("user already exists")
)

// User is an account. PasswordHash is never serialized.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// Token is an issued bearer token.
type Token struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer valid at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Store persists users and tokens.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	UsernameOrEmailTaken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error)
	CreateToken(ctx context.Context, t Token) error
	GetToken(ctx context.Context, token string) (Token, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// RegistrationError carries per-field validation messages.
type RegistrationError struct {
	Fields map[string]string
}

func (e *RegistrationError) Error() string {
	return "registration invalid"
}

func (e *RegistrationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}
