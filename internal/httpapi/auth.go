package httpapi

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/accord-chat/accord/internal/auth"
	"github.com/accord-chat/accord/internal/domain"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

const minPasswordLength = 8

type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type sessionResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if !usernamePattern.MatchString(req.Username) {
		respondError(w, r, domain.BadRequest("username must be 3-32 characters of letters, digits, '.', '-' or '_'"))
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(w, r, domain.BadRequestf("password must be at least %d characters", minPasswordLength))
		return
	}

	settings, err := s.store.ServerSettings(r.Context())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		respondError(w, r, err)
		return
	}
	if settings != nil && !settings.RegistrationOpen {
		respondError(w, r, domain.Forbidden("registration is closed on this instance"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	user := &domain.User{
		ID:           s.store.NewID(),
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	}
	if user.DisplayName == "" {
		user.DisplayName = req.Username
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		respondError(w, r, err)
		return
	}
	token, err := s.auth.CreateUserToken(r.Context(), user.ID, auth.DefaultUserTokenTTL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, sessionResponse{User: user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := s.store.UserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, r, domain.Unauthorized("invalid username or password"))
			return
		}
		respondError(w, r, err)
		return
	}
	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !ok {
		// Deliberately the same message as the unknown-username case.
		respondError(w, r, domain.Unauthorized("invalid username or password"))
		return
	}

	token, err := s.auth.CreateUserToken(r.Context(), user.ID, auth.DefaultUserTokenTTL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, sessionResponse{User: user, Token: token})
}

// handleLogout revokes only the token that authorized this request.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.RevokeHeader(r.Context(), r.Header.Get("Authorization")); err != nil {
		respondError(w, r, err)
		return
	}
	respondNoContent(w)
}
