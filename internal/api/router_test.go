package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"toollink/internal/api/handlers"
	"toollink/internal/api/middleware"
	"toollink/internal/engine/connections"
	"toollink/internal/engine/credentials"
	"toollink/internal/engine/oauthflow"
	"toollink/internal/engine/ratelimit"
	"toollink/internal/engine/secrets"
	"toollink/internal/engine/toolauth"
	"toollink/internal/platform/audit"
	"toollink/internal/platform/auth"
	"toollink/internal/platform/config"
	"toollink/internal/platform/database"
	"toollink/internal/platform/models"
	"toollink/internal/platform/repositories"
)

func setupServer(t *testing.T) (http.Handler, *sql.DB) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(database.Schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	codec, err := secrets.New(config.CryptoConfig{
		TokenSealKey: "test-seal-key-0123456789",
		APIKeySecret: "test-api-secret-0123456789",
	})
	if err != nil {
		t.Fatalf("Failed to build codec: %v", err)
	}

	userRepo := repositories.NewUserRepository(db)
	keyRepo := repositories.NewAPIKeyRepository(db)
	providerRepo := repositories.NewProviderRepository(db)
	stateRepo := repositories.NewOAuthStateRepository(db)
	connRepo := repositories.NewConnectionRepository(db)

	limiter := ratelimit.New()
	tokenSvc := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour})
	credSvc := credentials.NewService(userRepo, keyRepo, codec, limiter,
		config.RateLimitConfig{LoginAttempts: 5, LoginWindow: 5 * time.Minute})

	oauthCfg := config.OAuthConfig{StateTTL: 10 * time.Minute, ExchangeTimeout: 5 * time.Second}
	connMgr := connections.NewManager(connRepo, providerRepo, codec, oauthCfg)
	flowSvc := oauthflow.NewService(providerRepo, stateRepo, userRepo, connMgr, tokenSvc, oauthCfg)

	registry := toolauth.NewRegistry([]toolauth.Requirement{
		{Tool: "time.now", Description: "Current time"},
		{Tool: "gmail.send", Description: "Send email", Provider: "google"},
	})
	authorizer := toolauth.NewAuthorizer(registry, connMgr, providerRepo)
	auditLog := audit.NewLogger(db)

	deps := &Dependencies{
		AuthHandler:       handlers.NewAuthHandler(credSvc, tokenSvc, auditLog),
		APIKeyHandler:     handlers.NewAPIKeyHandler(credSvc, auditLog),
		OAuthHandler:      handlers.NewOAuthHandler(flowSvc, auditLog),
		ConnectionHandler: handlers.NewConnectionHandler(connMgr, auditLog),
		ToolHandler:       handlers.NewToolHandler(registry, authorizer),
		HealthHandler:     handlers.NewHealthHandler(db),
		AuthMiddleware:    middleware.NewAuthMiddleware(tokenSvc, credSvc),
		RateLimit:         middleware.NewRateLimitMiddleware(limiter, false),
		APIPerMinute:      600,
	}
	return NewRouter(deps), db
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	handler, db := setupServer(t)
	defer db.Close()

	rr := doJSON(t, handler, "GET", "/health", nil, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Health returned %d", rr.Code)
	}
}

func TestSignupLoginKeyLifecycle(t *testing.T) {
	handler, db := setupServer(t)
	defer db.Close()

	// signup
	rr := doJSON(t, handler, "POST", "/api/v1/auth/signup",
		map[string]string{"email": "a@example.com", "password": "Sup3rSecret"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Signup returned %d: %s", rr.Code, rr.Body.String())
	}

	var signup handlers.SignupResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &signup); err != nil {
		t.Fatalf("Failed to decode signup response: %v", err)
	}
	if signup.AccessToken == "" {
		t.Fatal("Signup issued no access token")
	}

	// login
	rr = doJSON(t, handler, "POST", "/api/v1/auth/login",
		map[string]string{"email": "a@example.com", "password": "Sup3rSecret"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Login returned %d: %s", rr.Code, rr.Body.String())
	}

	bearer := map[string]string{"Authorization": "Bearer " + signup.AccessToken}

	// mint a key with the session
	rr = doJSON(t, handler, "POST", "/api/v1/keys", map[string]string{"label": "ci"}, bearer)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Key creation returned %d: %s", rr.Code, rr.Body.String())
	}
	var created handlers.CreateKeyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode key response: %v", err)
	}
	if created.Key == "" {
		t.Fatal("Key creation returned no plaintext")
	}

	// the key authenticates requests
	rr = doJSON(t, handler, "POST", "/api/v1/tools/time.now/authorize", nil,
		map[string]string{"X-API-Key": created.Key})
	if rr.Code != http.StatusOK {
		t.Fatalf("Authorize with api key returned %d: %s", rr.Code, rr.Body.String())
	}

	// listing never echoes plaintext or digests
	rr = doJSON(t, handler, "GET", "/api/v1/keys", nil, bearer)
	if rr.Code != http.StatusOK {
		t.Fatalf("Key listing returned %d", rr.Code)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte(created.Key)) {
		t.Error("Key listing leaks the plaintext key")
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("key_hash")) {
		t.Error("Key listing exposes the stored digest")
	}

	// revoke, then the key is dead
	rr = doJSON(t, handler, "DELETE", "/api/v1/keys/"+created.ID, nil, bearer)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Revoke returned %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, "POST", "/api/v1/tools/time.now/authorize", nil,
		map[string]string{"X-API-Key": created.Key})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Revoked key returned %d, want 401", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("REVOKED_KEY")) {
		t.Errorf("Revoked key response = %s, want REVOKED_KEY", rr.Body.String())
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	handler, db := setupServer(t)
	defer db.Close()

	for _, route := range []struct{ method, path string }{
		{"GET", "/api/v1/keys"},
		{"GET", "/api/v1/connections"},
		{"GET", "/api/v1/tools"},
		{"POST", "/api/v1/tools/time.now/authorize"},
	} {
		rr := doJSON(t, handler, route.method, route.path, nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s returned %d, want 401", route.method, route.path, rr.Code)
		}
	}
}

func TestLoginFailureShape(t *testing.T) {
	handler, db := setupServer(t)
	defer db.Close()

	rr := doJSON(t, handler, "POST", "/api/v1/auth/login",
		map[string]string{"email": "ghost@example.com", "password": "WrongPass1"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Login returned %d, want 401", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body["code"] != "INVALID_CREDENTIALS" {
		t.Errorf("Error code = %v, want INVALID_CREDENTIALS", body["code"])
	}
	if body["trace_id"] == "" {
		t.Error("Error body carries no trace id")
	}
}

func TestAuthorizeConnectionRequired(t *testing.T) {
	handler, db := setupServer(t)
	defer db.Close()

	// catalog the provider so the failure is about the missing connection
	providerRepo := repositories.NewProviderRepository(db)
	err := providerRepo.Create(&models.OAuthProvider{
		Name: "google", DisplayName: "Google",
		AuthURL: "https://example.com/auth", TokenURL: "https://example.com/token",
		UserInfoURL: "https://example.com/userinfo", IsActive: true,
	})
	if err != nil {
		t.Fatalf("Failed to seed provider: %v", err)
	}

	rr := doJSON(t, handler, "POST", "/api/v1/auth/signup",
		map[string]string{"email": "a@example.com", "password": "Sup3rSecret"}, nil)
	var signup handlers.SignupResponse
	json.Unmarshal(rr.Body.Bytes(), &signup)

	rr = doJSON(t, handler, "POST", "/api/v1/tools/gmail.send/authorize", nil,
		map[string]string{"Authorization": "Bearer " + signup.AccessToken})
	if rr.Code != http.StatusPreconditionFailed {
		t.Errorf("Authorize returned %d, want 412", rr.Code)
	}
}
