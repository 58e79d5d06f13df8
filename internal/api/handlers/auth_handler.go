package handlers

import (
	"encoding/json"
	"net/http"

	"toollink/internal/api/middleware"
	"toollink/internal/engine/credentials"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/audit"
	"toollink/internal/platform/auth"
	"toollink/internal/platform/models"
)

type AuthHandler struct {
	creds    *credentials.Service
	tokenSvc *auth.TokenService
	audit    *audit.Logger
}

func NewAuthHandler(creds *credentials.Service, tokenSvc *auth.TokenService, auditLog *audit.Logger) *AuthHandler {
	return &AuthHandler{creds: creds, tokenSvc: tokenSvc, audit: auditLog}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()),
			errors.New(errors.CodeInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}

	user, err := h.creds.Register(req.Email, req.Password)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	accessToken, err := h.tokenSvc.Generate(user.ID, user.Email)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), errors.Internal(err))
		return
	}

	h.audit.Log(audit.Entry{
		UserID:       user.ID,
		Action:       "user.register",
		ResourceType: "user",
		ResourceID:   user.ID,
		IPAddress:    r.RemoteAddr,
		TraceID:      middleware.TraceID(r.Context()),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SignupResponse{User: user, AccessToken: accessToken})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	User        *models.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()),
			errors.New(errors.CodeInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}

	user, err := h.creds.VerifyPassword(req.Email, req.Password)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	accessToken, err := h.tokenSvc.Generate(user.ID, user.Email)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), errors.Internal(err))
		return
	}

	h.audit.Log(audit.Entry{
		UserID:       user.ID,
		Action:       "user.login",
		ResourceType: "user",
		ResourceID:   user.ID,
		IPAddress:    r.RemoteAddr,
		TraceID:      middleware.TraceID(r.Context()),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{AccessToken: accessToken, User: user})
}
