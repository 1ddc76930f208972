package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/logging"
	webmw "github.com/JonMunkholm/chemviz/internal/web/middleware"
)

// maxJSONBody bounds login and register payloads.
const maxJSONBody = 64 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    auth.User `json:"user"`
}

type validationResponse struct {
	Errors map[string]string `json:"errors"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// handleLogin exchanges a username and password for a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "user_id", sess.User.ID, "username", sess.User.Username).Info("login")
	writeJSON(w, http.StatusOK, sess)
}

// handleRegister creates an account and logs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}

	sess, err := s.auth.Register(r.Context(), in)
	var verr *auth.RegistrationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, validationResponse{Errors: verr.Fields})
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("user registered", "user_id", sess.User.ID)
	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "Registration successful",
		Token:   sess.Token,
		User:    sess.User,
	})
}

// handleLogout revokes the token the request was made with.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), webmw.TokenFromContext(r.Context())); err != nil {
		fail(w, r, err)
		return
	}
	if user, ok := webmw.UserFromContext(r.Context()); ok {
		logging.WithFields(r.Context(), "username", user.Username).Info("logout")
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
