package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is used when Config.TokenTTL is zero.
const DefaultTokenTTL = 24 * time.Hour

// DefaultMinPasswordLength is used when Config.MinPasswordLength is zero.
const DefaultMinPasswordLength = 8

// Config tunes a Service.
type Config struct {
	TokenTTL          time.Duration
	MinPasswordLength int
	BcryptCost        int
	Now               func() time.Time
}

// Service issues, validates and revokes tokens.
type Service struct {
	store     Store
	ttl       time.Duration
	minPass   int
	cost      int
	now       func() time.Time
	dummyHash []byte
}

// NewService constructs a Service over store.
func NewService(store Store, cfg Config) *Service {
	s := &Service{
		store:   store,
		ttl:     cfg.TokenTTL,
		minPass: cfg.MinPasswordLength,
		cost:    cfg.BcryptCost,
		now:     cfg.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.minPass <= 0 {
		s.minPass = DefaultMinPasswordLength
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	// Compared against when the username is unknown so both paths cost a bcrypt run.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("chemviz-placeholder"), s.cost)
	return s
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Session is a logged-in user with their token.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register validates in, creates the account and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	verr := &RegistrationError{}
	if in.Username == "" {
		verr.add("username", "This field is required.")
	}
	if in.Email == "" {
		verr.add("email", "This field is required.")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		verr.add("email", "Enter a valid email address.")
	}
	if len(in.Password) < s.minPass {
		verr.add("password", fmt.Sprintf("Password must be at least %d characters.", s.minPass))
	}
	if in.Password != in.ConfirmPassword {
		verr.add("confirm_password", "Passwords do not match.")
	}

	if in.Username != "" || in.Email != "" {
		userTaken, emailTaken, err := s.store.UsernameOrEmailTaken(ctx, in.Username, in.Email)
		if err != nil {
			return Session{}, fmt.Errorf("check existing user: %w", err)
		}
		if userTaken {
			verr.add("username", "A user with that username already exists.")
		}
		if emailTaken {
			verr.add("email", "A user with that email already exists.")
		}
	}
	if len(verr.Fields) > 0 {
		return Session{}, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, in.Username, in.Email, string(hash))
	if errors.Is(err, ErrUserExists) {
		return Session{}, &RegistrationError{Fields: map[string]string{
			"username": "A user with that username or email already exists.",
		}}
	}
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

// Login checks a password and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

// IssueToken mints a new token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	now := s.now().UTC()
	t := Token{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateToken(ctx, t); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return t.Token, nil
}

// Authenticate resolves a token to its user. Expired tokens are deleted.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	t, err := s.store.GetToken(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return User{}, ErrInvalidToken
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup token: %w", err)
	}
	if t.Expired(s.now()) {
		if err := s.store.DeleteToken(ctx, token); err != nil {
			slog.WarnContext(ctx, "delete expired token failed", "error", err)
		}
		return User{}, ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, t.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidToken
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Logout revokes a single token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteToken(ctx, token); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// SweepExpired deletes every expired token. It is run by the scheduler.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredTokens(ctx, s.now().UTC())
}

// EnsureUser creates the account if the username is free. It returns
// created=false when the user already exists.
func (s *Service) EnsureUser(ctx context.Context, username, email, password string) (bool, error) {
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.store.CreateUser(ctx, username, email, string(hash)); err != nil {
		return false, fmt.Errorf("create user: %w", err)
	}
	return true, nil
}

// ExtractToken reads "Bearer <t>" or "Token <t>" from an Authorization header.
func ExtractToken(header string) string {
	header = strings.TrimSpace(header)
	for _, scheme := range []string{"bearer ", "token "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return ""
}
