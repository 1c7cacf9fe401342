package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docq-ai/docq-go/internal/auth"
	"github.com/docq-ai/docq-go/internal/logging"
	"github.com/docq-ai/docq-go/internal/store"
)

// handleRegister handles POST /api/auth/register. It creates a new user
// account with a bcrypt password hash. Email addresses must be unique.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Error("register: hash password", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}

	u := store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.deps.Store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		log.Error("register: create user", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}

	log.Info("user registered", slog.String("user_id", u.ID))
	writeJSON(w, http.StatusCreated, userResponse{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	})
}

// handleLogin handles POST /api/auth/login. It verifies the credentials and
// returns a signed JWT access token. The failure message is identical for
// unknown emails and wrong passwords so accounts cannot be enumerated.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	u, err := s.deps.Store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("login: lookup user", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		loginRejected(w, log)
		return
	}

	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		loginRejected(w, log)
		return
	}

	token, err := s.deps.Tokens.IssueToken(u.ID)
	if err != nil {
		log.Error("login: issue token", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	log.Info("user logged in", slog.String("user_id", u.ID))
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// loginRejected sends the uniform 401 used for all credential failures.
func loginRejected(w http.ResponseWriter, log *slog.Logger) {
	log.Warn("login: invalid credentials")
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "Incorrect email or password")
}

// handleMe handles GET /api/auth/me. It returns the authenticated user's
// profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())

	u, err := s.deps.Store.UserByID(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Token is valid but the account no longer exists.
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ownerLog(r, ownerID).Error("me: lookup user", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not load user")
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	})
}
