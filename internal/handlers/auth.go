package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/openshelf/apiserver/internal/auth"
	"github.com/openshelf/apiserver/internal/services"
	"github.com/openshelf/apiserver/internal/store"
	"github.com/openshelf/apiserver/types"
)

const (
	defaultUserRole   = "user"
	minPasswordLength = 8
)

// AuthHandler provides registration, login, and identity endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      *auth.TokenService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, tokens *auth.TokenService, authn *auth.Authenticator) {
	handler := NewAuthHandler(userService, tokens)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(authn.Required).Get("/me", handler.Me)
}

// Register creates a new user account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "valid email required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if _, err := h.userService.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeInternalError(w, "failed to check user", err)
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to create user", err)
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Email:        req.Email,
		Role:         defaultUserRole,
		PasswordHash: hashed,
	})
	if err != nil {
		// The unique index is authoritative; the earlier lookup only
		// narrows the race window.
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeInternalError(w, "failed to create user", err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeInternalError(w, "failed to create token", err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !validEmail(req.Email) || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeInternalError(w, "failed to authenticate", err)
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeInternalError(w, "failed to create token", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeInternalError(w, "failed to load user", err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{User: user})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	User types.User `json:"user"`
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
