package config

import (
	"fmt"
	"strings"
	"time"

	"lovi-service/internal/pkg/actiontoken"
	"lovi-service/internal/pkg/jwt"

	"github.com/spf13/viper"
)

// Session store backends
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Refresh token transports
const (
	TransportCookie = "cookie"
	TransportBody   = "body"
)

type SessionConfig struct {
	Store         string
	RefreshTTL    time.Duration
	RevokeOnReuse bool
	Transport     string
	CookieSecure  bool
}

type ProviderConfig struct {
	Timeout           time.Duration
	GoogleUserInfoURL string
	SpotifyAPIURL     string
	FacebookGraphURL  string
	InstagramGraphURL string
}

type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

type AppConfig struct {
	// Server
	HTTPAddr      string
	Env           string
	PublicBaseURL string
	DatabaseURL   string
	RedisAddr     string
	RedisPass     string
	BcryptCost    int

	JWT         jwt.Config
	ActionToken actiontoken.Config
	Session     SessionConfig
	Providers   ProviderConfig
	Admin       AdminConfig

	// SMTP
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFromName string
	SMTPSecure   bool
}

// Load reads configuration from the environment. Values from a .env file
// are expected to be loaded into the environment beforehand (godotenv).
func Load() (AppConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := AppConfig{
		HTTPAddr:      v.GetString("HTTP_ADDR"),
		Env:           strings.ToLower(v.GetString("APP_ENV")),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPass:     v.GetString("REDIS_PASS"),
		BcryptCost:    v.GetInt("BCRYPT_COST"),

		JWT: jwt.Config{
			SigningKey: v.GetString("JWT_SIGNING_KEY"),
			Issuer:     v.GetString("JWT_ISSUER"),
			Audience:   v.GetString("JWT_AUDIENCE"),
			TTL:        v.GetDuration("ACCESS_TOKEN_TTL"),
		},

		ActionToken: actiontoken.Config{
			Secret:          v.GetString("ACTION_TOKEN_SECRET"),
			EmailConfirmTTL: v.GetDuration("EMAIL_CONFIRM_TTL"),
			PasswordReset:   v.GetDuration("PASSWORD_RESET_TTL"),
			EmailChangeTTL:  v.GetDuration("EMAIL_CHANGE_TTL"),
		},

		Session: SessionConfig{
			Store:         strings.ToLower(v.GetString("SESSION_STORE")),
			RefreshTTL:    v.GetDuration("REFRESH_TOKEN_TTL"),
			RevokeOnReuse: v.GetBool("SESSION_REVOKE_ON_REUSE"),
			Transport:     strings.ToLower(v.GetString("REFRESH_TRANSPORT")),
			CookieSecure:  v.GetBool("COOKIE_SECURE"),
		},

		Providers: ProviderConfig{
			Timeout:           v.GetDuration("PROVIDER_TIMEOUT"),
			GoogleUserInfoURL: v.GetString("GOOGLE_USERINFO_URL"),
			SpotifyAPIURL:     v.GetString("SPOTIFY_API_URL"),
			FacebookGraphURL:  v.GetString("FACEBOOK_GRAPH_URL"),
			InstagramGraphURL: v.GetString("INSTAGRAM_GRAPH_URL"),
		},

		Admin: AdminConfig{
			Email:    v.GetString("ADMIN_EMAIL"),
			Password: v.GetString("ADMIN_PASSWORD"),
			Name:     v.GetString("ADMIN_NAME"),
		},

		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetString("SMTP_PORT"),
		SMTPUser:     v.GetString("SMTP_USER"),
		SMTPPass:     v.GetString("SMTP_PASS"),
		SMTPFromName: v.GetString("SMTP_FROM_NAME"),
		SMTPSecure:   v.GetBool("SMTP_SECURE"),
	}

	if cfg.HTTPAddr == "" {
		return cfg, fmt.Errorf("config: HTTP_ADDR must be set")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASS", "")
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("JWT_SIGNING_KEY", "")
	v.SetDefault("JWT_ISSUER", "lovi-api")
	v.SetDefault("JWT_AUDIENCE", "lovi-clients")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")

	v.SetDefault("ACTION_TOKEN_SECRET", "")
	v.SetDefault("EMAIL_CONFIRM_TTL", "24h")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("EMAIL_CHANGE_TTL", "24h")

	v.SetDefault("SESSION_STORE", StorePostgres)
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("SESSION_REVOKE_ON_REUSE", false)
	v.SetDefault("REFRESH_TRANSPORT", TransportCookie)
	v.SetDefault("COOKIE_SECURE", true)

	v.SetDefault("PROVIDER_TIMEOUT", "8s")
	v.SetDefault("GOOGLE_USERINFO_URL", "https://www.googleapis.com/oauth2/v3/userinfo")
	v.SetDefault("SPOTIFY_API_URL", "https://api.spotify.com/v1/me")
	v.SetDefault("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/me")
	v.SetDefault("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com/me")

	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("ADMIN_NAME", "Administrator")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "465")
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM_NAME", "Lovi")
	v.SetDefault("SMTP_SECURE", true)
}

// Validate checks everything the API server needs before it starts.
func (c AppConfig) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL must be set")
	}
	if err := c.JWT.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.ActionToken.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.ActionToken.Secret == c.JWT.SigningKey {
		return fmt.Errorf("config: ACTION_TOKEN_SECRET must differ from JWT_SIGNING_KEY")
	}
	if c.Session.RefreshTTL <= 0 {
		return fmt.Errorf("config: REFRESH_TOKEN_TTL must be positive")
	}
	if c.Session.RefreshTTL <= c.JWT.TTL {
		return fmt.Errorf("config: REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}
	switch c.Session.Store {
	case StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("config: SESSION_STORE must be %q or %q, got %q", StorePostgres, StoreRedis, c.Session.Store)
	}
	switch c.Session.Transport {
	case TransportCookie, TransportBody:
	default:
		return fmt.Errorf("config: REFRESH_TRANSPORT must be %q or %q, got %q", TransportCookie, TransportBody, c.Session.Transport)
	}
	if c.Providers.Timeout <= 0 {
		return fmt.Errorf("config: PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}
