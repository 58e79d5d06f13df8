package main

import (
	"fmt"
	"log"
	"net/http"

	"toollink/internal/api"
	"toollink/internal/api/handlers"
	"toollink/internal/api/middleware"
	"toollink/internal/engine/connections"
	"toollink/internal/engine/credentials"
	"toollink/internal/engine/oauthflow"
	"toollink/internal/engine/ratelimit"
	"toollink/internal/engine/secrets"
	"toollink/internal/engine/toolauth"
	"toollink/internal/pkg/logger"
	"toollink/internal/platform/audit"
	"toollink/internal/platform/auth"
	"toollink/internal/platform/config"
	"toollink/internal/platform/database"
	"toollink/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	// Missing or short key material is the one fatal condition; per-request
	// failures are all recoverable.
	codec, err := secrets.New(cfg.Crypto)
	if err != nil {
		log.Fatalf("Crypto configuration invalid: %v", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	keyRepo := repositories.NewAPIKeyRepository(db)
	providerRepo := repositories.NewProviderRepository(db)
	stateRepo := repositories.NewOAuthStateRepository(db)
	connRepo := repositories.NewConnectionRepository(db)
	auditLog := audit.NewLogger(db)

	// Services
	limiter := ratelimit.New()
	tokenSvc := auth.NewTokenService(cfg.JWT)
	credSvc := credentials.NewService(userRepo, keyRepo, codec, limiter, cfg.RateLimit)
	connMgr := connections.NewManager(connRepo, providerRepo, codec, cfg.OAuth)
	flowSvc := oauthflow.NewService(providerRepo, stateRepo, userRepo, connMgr, tokenSvc, cfg.OAuth)

	requirements := make([]toolauth.Requirement, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		requirements = append(requirements, toolauth.Requirement{
			Tool:        t.Tool,
			Description: t.Description,
			Provider:    t.Provider,
			Scopes:      t.Scopes,
		})
	}
	registry := toolauth.NewRegistry(requirements)
	authorizer := toolauth.NewAuthorizer(registry, connMgr, providerRepo)

	// Handlers
	deps := &api.Dependencies{
		AuthHandler:       handlers.NewAuthHandler(credSvc, tokenSvc, auditLog),
		APIKeyHandler:     handlers.NewAPIKeyHandler(credSvc, auditLog),
		OAuthHandler:      handlers.NewOAuthHandler(flowSvc, auditLog),
		ConnectionHandler: handlers.NewConnectionHandler(connMgr, auditLog),
		ToolHandler:       handlers.NewToolHandler(registry, authorizer),
		HealthHandler:     handlers.NewHealthHandler(db),
		AuthMiddleware:    middleware.NewAuthMiddleware(tokenSvc, credSvc),
		RateLimit:         middleware.NewRateLimitMiddleware(limiter, cfg.RateLimit.TrustProxyHeader),
		APIPerMinute:      cfg.RateLimit.APIPerMinute,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
