package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Issuer    IssuerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Upstream  UpstreamConfig
	Clients   []OAuthClient
	RateLimit RateLimitConfig
	Cookies   CookieConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IssuerConfig describes the local token issuer.
type IssuerConfig struct {
	URL             string
	Secret          string
	AccessTokenTTL  time.Duration
	IDTokenTTL      time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration
	SessionTTL      time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// UpstreamConfig describes the federated upstream identity provider.
// The issuer must support OIDC discovery (Google-shaped).
type UpstreamConfig struct {
	Provider     string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration
}

// OAuthClient is a statically registered relying party. Redirect URIs are
// matched exactly, never by prefix.
type OAuthClient struct {
	ID           string   `json:"id"`
	Secret       string   `json:"secret"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type CookieConfig struct {
	Domain string
	Secure bool
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "notelab_idp")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("ISSUER_URL", "http://localhost:5002")
	viper.SetDefault("ACCESS_TOKEN_TTL_SECONDS", 120)
	viper.SetDefault("ID_TOKEN_TTL_SECONDS", 3600)
	viper.SetDefault("REFRESH_TOKEN_TTL_HOURS", 168)
	viper.SetDefault("AUTH_CODE_TTL_MINUTES", 10)
	viper.SetDefault("SESSION_TTL_HOURS", 24)
	viper.SetDefault("UPSTREAM_PROVIDER", "google")
	viper.SetDefault("UPSTREAM_ISSUER", "https://accounts.google.com")
	viper.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 10)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 20)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Issuer: IssuerConfig{
			URL:             viper.GetString("ISSUER_URL"),
			Secret:          os.Getenv("IDP_SIGNING_SECRET"),
			AccessTokenTTL:  time.Duration(viper.GetInt("ACCESS_TOKEN_TTL_SECONDS")) * time.Second,
			IDTokenTTL:      time.Duration(viper.GetInt("ID_TOKEN_TTL_SECONDS")) * time.Second,
			RefreshTokenTTL: time.Duration(viper.GetInt("REFRESH_TOKEN_TTL_HOURS")) * time.Hour,
			AuthCodeTTL:     time.Duration(viper.GetInt("AUTH_CODE_TTL_MINUTES")) * time.Minute,
			SessionTTL:      time.Duration(viper.GetInt("SESSION_TTL_HOURS")) * time.Hour,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Upstream: UpstreamConfig{
			Provider:     viper.GetString("UPSTREAM_PROVIDER"),
			Issuer:       viper.GetString("UPSTREAM_ISSUER"),
			ClientID:     viper.GetString("UPSTREAM_CLIENT_ID"),
			ClientSecret: os.Getenv("UPSTREAM_CLIENT_SECRET"),
			RedirectURL:  viper.GetString("UPSTREAM_REDIRECT_URL"),
			Scopes:       []string{"openid", "profile", "email"},
			Timeout:      time.Duration(viper.GetInt("UPSTREAM_TIMEOUT_SECONDS")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Cookies: CookieConfig{
			Domain: viper.GetString("COOKIE_DOMAIN"),
			Secure: viper.GetBool("COOKIE_SECURE"),
		},
	}

	clients, err := loadClients()
	if err != nil {
		return nil, err
	}
	cfg.Clients = clients

	if cfg.Issuer.Secret == "" {
		return nil, fmt.Errorf("environment variable IDP_SIGNING_SECRET is required")
	}

	return cfg, nil
}

// loadClients parses the registered client set from OAUTH_CLIENTS (a JSON
// array). When unset, the two demo relying parties are seeded so the local
// task/docs apps work out of the box.
func loadClients() ([]OAuthClient, error) {
	raw := os.Getenv("OAUTH_CLIENTS")
	if raw == "" {
		return defaultClients(), nil
	}
	var clients []OAuthClient
	if err := json.Unmarshal([]byte(raw), &clients); err != nil {
		return nil, fmt.Errorf("OAUTH_CLIENTS: %w", err)
	}
	for _, c := range clients {
		if c.ID == "" || len(c.RedirectURIs) == 0 {
			return nil, fmt.Errorf("OAUTH_CLIENTS: client entries need id and redirect_uris")
		}
	}
	return clients, nil
}

func defaultClients() []OAuthClient {
	return []OAuthClient{
		{
			ID:           "taskapp",
			Secret:       "taskapp-secret",
			Name:         "Notelab Tasks",
			RedirectURIs: []string{"http://localhost:3001/callback"},
		},
		{
			ID:           "docsapp",
			Secret:       "docsapp-secret",
			Name:         "Notelab Docs",
			RedirectURIs: []string{"http://localhost:3002/callback"},
		},
	}
}
