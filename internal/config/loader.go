package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends accepted by COORDINATOR_STORAGE.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config captures environment driven configuration values for the coordinator service.
type Config struct {
	HTTPPort int
	LogLevel string

	Storage     string
	SQLiteDSN   string
	DatabaseURL string

	TokenPublicKey string
	TokenIssuer    string

	GoogleAIAPIKey    string
	Model             string
	SuggestionTimeout time.Duration

	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	StateSecret       string

	RedisURL          string
	WorkerConcurrency int

	CalDAV CalDAVConfig

	AllowedOrigins []string
}

// CalDAVConfig names the calendar confirmed meetings are published to.
type CalDAVConfig struct {
	URL      string
	Username string
	Password string
	Calendar string
}

// Enabled reports whether a CalDAV endpoint was configured.
func (c CalDAVConfig) Enabled() bool {
	return c.URL != ""
}

// OAuthEnabled reports whether Google OAuth credentials were configured.
func (c Config) OAuthEnabled() bool {
	return c.OAuthClientID != "" && c.OAuthClientSecret != ""
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields while validating
// required values and reporting localized error messages for missing entries.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:          8080,
		LogLevel:          "info",
		Storage:           StorageSQLite,
		SQLiteDSN:         "file:coordinator.db?_pragma=foreign_keys(1)",
		TokenIssuer:       "meeting-coordinator",
		Model:             "gemini-2.0-flash",
		SuggestionTimeout: 30 * time.Second,
		OAuthRedirectURL:  "http://localhost:3000/auth/google/callback",
		WorkerConcurrency: 5,
		AllowedOrigins:    []string{"*"},
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if portValue := env("COORDINATOR_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "COORDINATOR_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if level := env("COORDINATOR_LOG_LEVEL"); level != "" {
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "warning", "error":
			cfg.LogLevel = strings.ToLower(level)
		default:
			invalid = append(invalid, "COORDINATOR_LOG_LEVEL")
		}
	}

	if storage := env("COORDINATOR_STORAGE"); storage != "" {
		switch strings.ToLower(storage) {
		case StorageSQLite, StoragePostgres, StorageMemory:
			cfg.Storage = strings.ToLower(storage)
		default:
			invalid = append(invalid, "COORDINATOR_STORAGE")
		}
	}

	if dsn := env("COORDINATOR_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	cfg.DatabaseURL = env("COORDINATOR_DATABASE_URL")
	if cfg.Storage == StoragePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "COORDINATOR_DATABASE_URL")
	}

	if key := env("COORDINATOR_TOKEN_PUBLIC_KEY"); key == "" {
		missing = append(missing, "COORDINATOR_TOKEN_PUBLIC_KEY")
	} else {
		cfg.TokenPublicKey = key
	}

	if issuer := env("COORDINATOR_TOKEN_ISSUER"); issuer != "" {
		cfg.TokenIssuer = issuer
	}

	if apiKey := env("GOOGLE_AI_API_KEY"); apiKey == "" {
		missing = append(missing, "GOOGLE_AI_API_KEY")
	} else {
		cfg.GoogleAIAPIKey = apiKey
	}

	if model := env("COORDINATOR_MODEL"); model != "" {
		cfg.Model = model
	}

	if timeoutValue := env("COORDINATOR_SUGGESTION_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "COORDINATOR_SUGGESTION_TIMEOUT")
		} else {
			cfg.SuggestionTimeout = timeout
		}
	}

	cfg.OAuthClientID = env("GOOGLE_OAUTH_CLIENT_ID")
	cfg.OAuthClientSecret = env("GOOGLE_OAUTH_CLIENT_SECRET")
	if redirect := env("GOOGLE_OAUTH_REDIRECT_URL"); redirect != "" {
		cfg.OAuthRedirectURL = redirect
	}
	cfg.StateSecret = env("COORDINATOR_STATE_SECRET")
	if cfg.OAuthEnabled() && cfg.StateSecret == "" {
		missing = append(missing, "COORDINATOR_STATE_SECRET")
	}

	cfg.RedisURL = env("COORDINATOR_REDIS_URL")

	if concurrencyValue := env("COORDINATOR_WORKER_CONCURRENCY"); concurrencyValue != "" {
		concurrency, err := strconv.Atoi(concurrencyValue)
		if err != nil || concurrency <= 0 {
			invalid = append(invalid, "COORDINATOR_WORKER_CONCURRENCY")
		} else {
			cfg.WorkerConcurrency = concurrency
		}
	}

	cfg.CalDAV = CalDAVConfig{
		URL:      env("COORDINATOR_CALDAV_URL"),
		Username: env("COORDINATOR_CALDAV_USERNAME"),
		Password: os.Getenv("COORDINATOR_CALDAV_PASSWORD"),
		Calendar: env("COORDINATOR_CALDAV_CALENDAR"),
	}
	if cfg.CalDAV.Enabled() && cfg.CalDAV.Calendar == "" {
		missing = append(missing, "COORDINATOR_CALDAV_CALENDAR")
	}

	if origins := env("COORDINATOR_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
		if len(cfg.AllowedOrigins) == 0 {
			invalid = append(invalid, "COORDINATOR_ALLOWED_ORIGINS")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
