package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "toollink/internal/api/context"
	"toollink/internal/api/middleware"
	"toollink/internal/engine/toolauth"
	"toollink/internal/pkg/errors"
)

type ToolHandler struct {
	registry   *toolauth.Registry
	authorizer *toolauth.Authorizer
}

func NewToolHandler(registry *toolauth.Registry, authorizer *toolauth.Authorizer) *ToolHandler {
	return &ToolHandler{registry: registry, authorizer: authorizer}
}

func (h *ToolHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.List())
}

type AuthorizeRequest struct {
	ConnectionID string `json:"connection_id,omitempty"`
}

// AuthorizeResponse is the verdict handed back to the execution path.
// The access token is scoped to this single execution.
type AuthorizeResponse struct {
	Tool         string `json:"tool"`
	Provider     string `json:"provider,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
}

func (h *ToolHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	tool := params.ByName("tool")

	var req AuthorizeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errors.WriteError(w, middleware.TraceID(r.Context()),
				errors.New(errors.CodeInvalidInput, http.StatusBadRequest, "invalid request body"))
			return
		}
	}

	execCtx, err := h.authorizer.Authorize(r.Context(), caller.UserID, tool, req.ConnectionID)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	resp := AuthorizeResponse{Tool: execCtx.Tool, Provider: execCtx.Provider, AccessToken: execCtx.AccessToken}
	if execCtx.Account != nil {
		resp.ConnectionID = execCtx.Account.ID
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
