package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tools     []ToolConfig    `mapstructure:"tools"`
}

// ToolConfig declares one tool's connection requirement. The set forms
// the read-only capability table handed to the authorizer at startup.
type ToolConfig struct {
	Tool        string   `mapstructure:"tool"`
	Description string   `mapstructure:"description"`
	Provider    string   `mapstructure:"provider"`
	Scopes      []string `mapstructure:"scopes"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// CryptoConfig supplies the process-wide secrets. TokenSealKey protects
// OAuth tokens at rest; APIKeySecret keys the api-key digests. Both are
// checked once at startup.
type CryptoConfig struct {
	TokenSealKey string `mapstructure:"token_seal_key"`
	APIKeySecret string `mapstructure:"api_key_secret"`
}

type RateLimitConfig struct {
	LoginAttempts int           `mapstructure:"login_attempts"`
	LoginWindow   time.Duration `mapstructure:"login_window"`
	APIPerMinute  int           `mapstructure:"api_per_minute"`
	// TrustProxyHeader keys anonymous limits by the first X-Forwarded-For
	// entry instead of the socket address. Enable only behind a proxy
	// that overwrites the header.
	TrustProxyHeader bool `mapstructure:"trust_proxy_header"`
}

// OAuthConfig holds flow tuning plus per-provider client credentials.
// Client secrets come exclusively from here (env or config file), never
// from the persisted provider catalog.
type OAuthConfig struct {
	StateTTL        time.Duration                `mapstructure:"state_ttl"`
	ExchangeTimeout time.Duration                `mapstructure:"exchange_timeout"`
	Clients         map[string]ClientCredentials `mapstructure:"clients"`
}

type ClientCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWT.AccessTokenTTL == 0 {
		cfg.JWT.AccessTokenTTL = time.Hour
	}
	if cfg.RateLimit.LoginAttempts == 0 {
		cfg.RateLimit.LoginAttempts = 5
	}
	if cfg.RateLimit.LoginWindow == 0 {
		cfg.RateLimit.LoginWindow = 5 * time.Minute
	}
	if cfg.RateLimit.APIPerMinute == 0 {
		cfg.RateLimit.APIPerMinute = 600
	}
	if cfg.OAuth.StateTTL == 0 {
		cfg.OAuth.StateTTL = 10 * time.Minute
	}
	if cfg.OAuth.ExchangeTimeout == 0 {
		cfg.OAuth.ExchangeTimeout = 15 * time.Second
	}
}
