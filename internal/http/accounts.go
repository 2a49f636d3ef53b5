package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"cadence/practice/internal/auth"
	"cadence/practice/internal/crypto"
	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
)

const (
	minPasswordLength = 8
	minNameLength     = 2
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	switch {
	case !validEmail(email):
		writeError(w, http.StatusBadRequest, "invalid_email")
		return
	case len(req.Password) < minPasswordLength:
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	case len([]rune(name)) < minNameLength:
		writeError(w, http.StatusBadRequest, "invalid_name")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.serverError(w, r, err, "hash password")
		return
	}
	now := s.now().UTC()
	account := model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleTeacher,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, db.ErrConflict) {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		s.serverError(w, r, err, "create teacher")
		return
	}

	s.respondWithToken(w, r, http.StatusCreated, account)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	account, err := s.store.GetAccountByEmail(r.Context(), email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "load account")
		return
	}
	if account.Pending() || crypto.CheckPassword(account.PasswordHash, req.Password) != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	s.respondWithToken(w, r, http.StatusOK, account)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if s.revoker != nil && claims != nil && claims.ID != "" {
		if err := s.revoker.Revoke(r.Context(), claims.ID, claims.Remaining(s.now())); err != nil {
			s.serverError(w, r, err, "revoke token")
			return
		}
	}
	s.clearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	account, err := s.store.GetAccountByID(r.Context(), caller.ID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "load account")
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(account))
}

// respondWithToken issues an access token for account, sets the cookie and
// writes the token with the user.
func (s *Server) respondWithToken(w http.ResponseWriter, r *http.Request, status int, account model.Account) {
	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: account.ID,
		Role:   string(account.Role),
		Email:  account.Email,
	})
	if err != nil {
		s.serverError(w, r, err, "issue token")
		return
	}
	s.setTokenCookie(w, token)
	writeJSON(w, status, authResponse{Token: token, User: mapAccount(account)})
}
