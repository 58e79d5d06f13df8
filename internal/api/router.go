package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	apiContext "toollink/internal/api/context"
	"toollink/internal/api/handlers"
	"toollink/internal/api/middleware"
)

type Dependencies struct {
	AuthHandler       *handlers.AuthHandler
	APIKeyHandler     *handlers.APIKeyHandler
	OAuthHandler      *handlers.OAuthHandler
	ConnectionHandler *handlers.ConnectionHandler
	ToolHandler       *handlers.ToolHandler
	HealthHandler     *handlers.HealthHandler
	AuthMiddleware    *middleware.AuthMiddleware
	RateLimit         *middleware.RateLimitMiddleware
	APIPerMinute      int
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	authMid := deps.AuthMiddleware
	apiLimit := deps.RateLimit.Handle("api", deps.APIPerMinute, time.Minute)
	// credential endpoints are the brute-force surface; keep them tight
	authLimit := deps.RateLimit.Handle("auth", 30, time.Minute)

	router.GET("/health", wrap(deps.HealthHandler.Handle))

	// Authentication
	router.POST("/api/v1/auth/signup", chain(deps.AuthHandler.Signup, middleware.Trace, authLimit))
	router.POST("/api/v1/auth/login", chain(deps.AuthHandler.Login, middleware.Trace, authLimit))

	// API keys
	router.POST("/api/v1/keys", chain(deps.APIKeyHandler.Create, middleware.Trace, authMid.Handle, apiLimit))
	router.GET("/api/v1/keys", chain(deps.APIKeyHandler.List, middleware.Trace, authMid.Handle, apiLimit))
	router.DELETE("/api/v1/keys/:key_id", chain(deps.APIKeyHandler.Revoke, middleware.Trace, authMid.Handle, apiLimit))

	// OAuth flow; initiate and callback also serve pre-login flows
	router.GET("/api/v1/oauth/providers", chain(deps.OAuthHandler.ListProviders, middleware.Trace, apiLimit))
	router.POST("/api/v1/oauth/:provider/initiate", chain(deps.OAuthHandler.Initiate, middleware.Trace, authMid.HandleOptional, authLimit))
	router.GET("/api/v1/oauth/:provider/callback", chain(deps.OAuthHandler.Callback, middleware.Trace, authLimit))

	// Connections
	router.GET("/api/v1/connections", chain(deps.ConnectionHandler.List, middleware.Trace, authMid.Handle, apiLimit))
	router.DELETE("/api/v1/connections/:connection_id", chain(deps.ConnectionHandler.Revoke, middleware.Trace, authMid.Handle, apiLimit))
	router.POST("/api/v1/connections/:connection_id/primary", chain(deps.ConnectionHandler.PromotePrimary, middleware.Trace, authMid.Handle, apiLimit))

	// Tools
	router.GET("/api/v1/tools", chain(deps.ToolHandler.List, middleware.Trace, authMid.Handle, apiLimit))
	router.POST("/api/v1/tools/:tool/authorize", chain(deps.ToolHandler.Authorize, middleware.Trace, authMid.Handle, apiLimit))

	return router
}

// chain applies middlewares outermost-first.
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// wrap converts http.HandlerFunc to httprouter.Handle, carrying the
// route params through the request context.
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
