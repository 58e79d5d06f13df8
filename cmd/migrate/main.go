package main

import (
	"flag"
	"log"

	"toollink/internal/platform/config"
	"toollink/internal/platform/database"
	"toollink/internal/platform/models"
	"toollink/internal/platform/repositories"
)

// Provider catalog seeded on migrate. Endpoints and scopes only; client
// credentials are read from runtime config and never touch the database.
var defaultProviders = []models.OAuthProvider{
	{
		Name:        "google",
		DisplayName: "Google",
		AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:    "https://oauth2.googleapis.com/token",
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		Scopes:      "openid email profile",
		IsActive:    true,
	},
	{
		Name:        "github",
		DisplayName: "GitHub",
		AuthURL:     "https://github.com/login/oauth/authorize",
		TokenURL:    "https://github.com/login/oauth/access_token",
		UserInfoURL: "https://api.github.com/user",
		Scopes:      "read:user user:email",
		IsActive:    true,
	},
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	skipSeed := flag.Bool("skip-seed", false, "apply schema only, do not seed the provider catalog")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Schema applied")

	if *skipSeed {
		return
	}

	providerRepo := repositories.NewProviderRepository(db)
	for i := range defaultProviders {
		p := defaultProviders[i]
		if err := providerRepo.Create(&p); err != nil {
			log.Fatalf("Failed to seed provider %s: %v", p.Name, err)
		}
		log.Printf("Seeded provider %s", p.Name)
	}
}
