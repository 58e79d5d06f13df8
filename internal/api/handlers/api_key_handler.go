package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "toollink/internal/api/context"
	"toollink/internal/api/middleware"
	"toollink/internal/engine/credentials"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/audit"
	"toollink/internal/platform/models"
)

type APIKeyHandler struct {
	creds *credentials.Service
	audit *audit.Logger
}

func NewAPIKeyHandler(creds *credentials.Service, auditLog *audit.Logger) *APIKeyHandler {
	return &APIKeyHandler{creds: creds, audit: auditLog}
}

type CreateKeyRequest struct {
	Label  string `json:"label"`
	Prefix string `json:"prefix,omitempty"`
}

type CreateKeyResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"` // plaintext, shown exactly once
	Label     string `json:"label"`
	Prefix    string `json:"prefix"`
	CreatedAt int64  `json:"created_at"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()),
			errors.New(errors.CodeInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}

	plaintext, key, err := h.creds.CreateAPIKey(caller.UserID, req.Label, req.Prefix)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	h.audit.Log(audit.Entry{
		UserID:       caller.UserID,
		Action:       "apikey.create",
		ResourceType: "api_key",
		ResourceID:   key.ID,
		IPAddress:    r.RemoteAddr,
		TraceID:      middleware.TraceID(r.Context()),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateKeyResponse{
		ID:        key.ID,
		Key:       plaintext,
		Label:     key.Label,
		Prefix:    key.Prefix,
		CreatedAt: key.CreatedAt,
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())

	keys, err := h.creds.ListAPIKeys(caller.UserID)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(keys)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	keyID := params.ByName("key_id")

	if err := h.creds.RevokeAPIKey(caller.UserID, keyID); err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	h.audit.Log(audit.Entry{
		UserID:       caller.UserID,
		Action:       "apikey.revoke",
		ResourceType: "api_key",
		ResourceID:   keyID,
		IPAddress:    r.RemoteAddr,
		TraceID:      middleware.TraceID(r.Context()),
	})

	w.WriteHeader(http.StatusNoContent)
}
