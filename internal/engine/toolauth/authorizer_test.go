package toolauth

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"

	"toollink/internal/engine/connections"
	"toollink/internal/engine/secrets"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/config"
	"toollink/internal/platform/database"
	"toollink/internal/platform/models"
	"toollink/internal/platform/repositories"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(database.Schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return db
}

type fixture struct {
	db       *sql.DB
	mgr      *connections.Manager
	provider *models.OAuthProvider
	auth     *Authorizer
}

func setupFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	codec, err := secrets.New(config.CryptoConfig{
		TokenSealKey: "test-seal-key-0123456789",
		APIKeySecret: "test-api-secret-0123456789",
	})
	if err != nil {
		t.Fatalf("Failed to build codec: %v", err)
	}

	providerRepo := repositories.NewProviderRepository(db)
	provider := &models.OAuthProvider{
		Name:        "google",
		DisplayName: "Google",
		AuthURL:     "https://example.com/auth",
		TokenURL:    "https://example.com/token",
		UserInfoURL: "https://example.com/userinfo",
		IsActive:    true,
	}
	if err := providerRepo.Create(provider); err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	mgr := connections.NewManager(repositories.NewConnectionRepository(db), providerRepo, codec, config.OAuthConfig{
		ExchangeTimeout: 5 * time.Second,
		Clients: map[string]config.ClientCredentials{
			"google": {ClientID: "cid", ClientSecret: "csec"},
		},
	})

	registry := NewRegistry([]Requirement{
		{Tool: "gmail.send", Description: "Send email", Provider: "google", Scopes: []string{"gmail.send"}},
		{Tool: "time.now", Description: "Current time"},
	})

	if _, err := db.Exec(`INSERT INTO users (id, email, is_active, created_at, updated_at) VALUES ('usr_1', 'a@example.com', 1, 0, 0), ('usr_2', 'b@example.com', 1, 0, 0)`); err != nil {
		t.Fatalf("Failed to insert users: %v", err)
	}

	return &fixture{
		db:       db,
		mgr:      mgr,
		provider: provider,
		auth:     NewAuthorizer(registry, mgr, providerRepo),
	}
}

func (f *fixture) connect(t *testing.T, userID, oauthUserID string) *models.ConnectedAccount {
	tok := &oauth2.Token{AccessToken: "at-" + oauthUserID, Expiry: time.Now().Add(time.Hour)}
	acct, err := f.mgr.Upsert(userID, f.provider, connections.Profile{OAuthUserID: oauthUserID}, tok)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", oauthUserID, err)
	}
	return acct
}

func TestAuthorize_UnknownTool(t *testing.T) {
	f := setupFixture(t)

	_, err := f.auth.Authorize(context.Background(), "usr_1", "nonexistent.tool", "")
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestAuthorize_NoRequirement(t *testing.T) {
	f := setupFixture(t)

	ec, err := f.auth.Authorize(context.Background(), "usr_1", "time.now", "")
	if err != nil {
		t.Fatalf("Failed to authorize requirement-free tool: %v", err)
	}
	if ec.AccessToken != "" || ec.Account != nil {
		t.Error("Requirement-free tool should carry no credentials")
	}
	if ec.Tool != "time.now" || ec.UserID != "usr_1" {
		t.Errorf("Execution context = %+v", ec)
	}
}

func TestAuthorize_ConnectionRequired(t *testing.T) {
	f := setupFixture(t)

	_, err := f.auth.Authorize(context.Background(), "usr_1", "gmail.send", "")
	if errors.CodeOf(err) != errors.CodeConnectionRequired {
		t.Fatalf("Expected CONNECTION_REQUIRED, got %v", err)
	}
	if errors.StatusOf(err) != http.StatusPreconditionFailed {
		t.Errorf("Status = %d, want 412", errors.StatusOf(err))
	}
}

func TestAuthorize_SingleMatchAutoSelects(t *testing.T) {
	f := setupFixture(t)
	acct := f.connect(t, "usr_1", "g-1")

	ec, err := f.auth.Authorize(context.Background(), "usr_1", "gmail.send", "")
	if err != nil {
		t.Fatalf("Failed to authorize: %v", err)
	}
	if ec.Account.ID != acct.ID {
		t.Errorf("Selected connection %s, want %s", ec.Account.ID, acct.ID)
	}
	if ec.AccessToken != "at-g-1" {
		t.Errorf("AccessToken = %s, want at-g-1", ec.AccessToken)
	}
	if ec.Provider != "google" {
		t.Errorf("Provider = %s, want google", ec.Provider)
	}
}

func TestAuthorize_AmbiguousWithoutExplicitID(t *testing.T) {
	f := setupFixture(t)
	f.connect(t, "usr_1", "g-1")
	f.connect(t, "usr_1", "g-2")

	_, err := f.auth.Authorize(context.Background(), "usr_1", "gmail.send", "")
	if errors.CodeOf(err) != errors.CodeAmbiguousConnection {
		t.Fatalf("Expected AMBIGUOUS_CONNECTION, got %v", err)
	}
	if errors.StatusOf(err) != http.StatusConflict {
		t.Errorf("Status = %d, want 409", errors.StatusOf(err))
	}
}

func TestAuthorize_ExplicitID(t *testing.T) {
	f := setupFixture(t)
	f.connect(t, "usr_1", "g-1")
	second := f.connect(t, "usr_1", "g-2")

	ec, err := f.auth.Authorize(context.Background(), "usr_1", "gmail.send", second.ID)
	if err != nil {
		t.Fatalf("Failed to authorize with explicit id: %v", err)
	}
	if ec.Account.ID != second.ID {
		t.Errorf("Selected %s, want %s", ec.Account.ID, second.ID)
	}
	if ec.AccessToken != "at-g-2" {
		t.Errorf("AccessToken = %s, want at-g-2", ec.AccessToken)
	}
}

func TestAuthorize_ExplicitID_WrongOwner(t *testing.T) {
	f := setupFixture(t)
	f.connect(t, "usr_1", "g-1")
	foreign := f.connect(t, "usr_2", "g-other")

	_, err := f.auth.Authorize(context.Background(), "usr_1", "gmail.send", foreign.ID)
	if errors.CodeOf(err) != errors.CodeForbidden {
		t.Errorf("Expected FORBIDDEN, got %v", err)
	}
}

func TestAuthorize_ExplicitID_NotFound(t *testing.T) {
	f := setupFixture(t)
	f.connect(t, "usr_1", "g-1")

	_, err := f.auth.Authorize(context.Background(), "usr_1", "gmail.send", "conn_missing")
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestAuthorize_ExpiredWithoutRefresh(t *testing.T) {
	f := setupFixture(t)

	tok := &oauth2.Token{AccessToken: "at-stale", Expiry: time.Now().Add(-time.Hour)}
	if _, err := f.mgr.Upsert("usr_1", f.provider, connections.Profile{OAuthUserID: "g-1"}, tok); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	_, err := f.auth.Authorize(context.Background(), "usr_1", "gmail.send", "")
	if errors.CodeOf(err) != errors.CodeReauthorizationRequired {
		t.Fatalf("Expected REAUTHORIZATION_REQUIRED, got %v", err)
	}
	if errors.StatusOf(err) != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", errors.StatusOf(err))
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry([]Requirement{
		{Tool: "b.second", Provider: "google"},
		{Tool: "a.first"},
	})

	if _, ok := reg.Lookup("a.first"); !ok {
		t.Error("Lookup missed a registered tool")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Error("Lookup found an unregistered tool")
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(list))
	}
	// insertion order is the catalog order
	if list[0].Tool != "b.second" || list[1].Tool != "a.first" {
		t.Errorf("List order = %s, %s", list[0].Tool, list[1].Tool)
	}
}
