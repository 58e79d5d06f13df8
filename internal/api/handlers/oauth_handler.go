package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "toollink/internal/api/context"
	"toollink/internal/api/middleware"
	"toollink/internal/engine/oauthflow"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/audit"
	"toollink/internal/platform/models"
)

type OAuthHandler struct {
	flow  *oauthflow.Service
	audit *audit.Logger
}

func NewOAuthHandler(flow *oauthflow.Service, auditLog *audit.Logger) *OAuthHandler {
	return &OAuthHandler{flow: flow, audit: auditLog}
}

func (h *OAuthHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.flow.ListProviders()
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}
	if providers == nil {
		providers = []*models.OAuthProvider{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(providers)
}

type InitiateResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// Initiate works both logged-in (connect another account) and anonymous
// (OAuth login); the optional caller identity rides along in the state.
func (h *OAuthHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	provider := params.ByName("provider")
	redirectURI := r.URL.Query().Get("redirect_uri")

	userID := ""
	if caller := middleware.CallerIdentity(r.Context()); caller != nil {
		userID = caller.UserID
	}

	authURL, state, err := h.flow.Initiate(userID, provider, redirectURI)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(InitiateResponse{AuthorizationURL: authURL, State: state})
}

type CallbackResponse struct {
	User        *models.User             `json:"user"`
	Connection  *models.ConnectedAccount `json:"connection"`
	AccessToken string                   `json:"access_token"`
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	provider := params.ByName("provider")
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	result, err := h.flow.HandleCallback(r.Context(), provider, code, state)
	if err != nil {
		errors.WriteError(w, middleware.TraceID(r.Context()), err)
		return
	}

	h.audit.Log(audit.Entry{
		UserID:       result.User.ID,
		Action:       "oauth.connect",
		ResourceType: "connection",
		ResourceID:   result.Account.ID,
		IPAddress:    r.RemoteAddr,
		TraceID:      middleware.TraceID(r.Context()),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CallbackResponse{
		User:        result.User,
		Connection:  result.Account,
		AccessToken: result.SessionToken,
	})
}
