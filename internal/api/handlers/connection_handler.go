package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "toollink/internal/api/context"
	"toollink/internal/api/middleware"
	"toollink/internal/engine/connections"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/audit"
	"toollink/internal/platform/models"
)

type ConnectionHandler struct {
	manager *connections.Manager
	audit   *audit.Logger
}

func NewConnectionHandler(manager *connections.Manager, auditLog *audit.Logger) *ConnectionHandler {
	return &ConnectionHandler{manager: manager, audit: auditLog}
}

func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	provider := r.URL.Query().Get("provider")

	accounts, err := h.manager.List(caller.UserID, provider)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}
	if accounts == nil {
		accounts = []*models.ConnectedAccount{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

func (h *ConnectionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	connID := params.ByName("connection_id")

	if err := h.manager.Revoke(caller.UserID, connID); err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	h.audit.Log(audit.Entry{
		UserID:       caller.UserID,
		Action:       "connection.revoke",
		ResourceType: "connection",
		ResourceID:   connID,
		IPAddress:    r.RemoteAddr,
		TraceID:      middleware.TraceID(r.Context()),
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionHandler) PromotePrimary(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	connID := params.ByName("connection_id")

	if err := h.manager.PromotePrimary(caller.UserID, connID); err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
