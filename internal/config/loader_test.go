package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

var allVariables = []string{
	"COORDINATOR_HTTP_PORT",
	"COORDINATOR_LOG_LEVEL",
	"COORDINATOR_STORAGE",
	"COORDINATOR_SQLITE_DSN",
	"COORDINATOR_DATABASE_URL",
	"COORDINATOR_TOKEN_PUBLIC_KEY",
	"COORDINATOR_TOKEN_ISSUER",
	"GOOGLE_AI_API_KEY",
	"COORDINATOR_MODEL",
	"COORDINATOR_SUGGESTION_TIMEOUT",
	"GOOGLE_OAUTH_CLIENT_ID",
	"GOOGLE_OAUTH_CLIENT_SECRET",
	"GOOGLE_OAUTH_REDIRECT_URL",
	"COORDINATOR_STATE_SECRET",
	"COORDINATOR_REDIS_URL",
	"COORDINATOR_WORKER_CONCURRENCY",
	"COORDINATOR_CALDAV_URL",
	"COORDINATOR_CALDAV_USERNAME",
	"COORDINATOR_CALDAV_PASSWORD",
	"COORDINATOR_CALDAV_CALENDAR",
	"COORDINATOR_ALLOWED_ORIGINS",
}

// clearEnvironment unsets every variable for the duration of the test.
func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, key := range allVariables {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("COORDINATOR_TOKEN_PUBLIC_KEY", "abcdef")
	t.Setenv("GOOGLE_AI_API_KEY", "ai-key")
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnvironment(t)
		setRequired(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Storage != StorageSQLite {
			t.Fatalf("expected sqlite storage, got %q", cfg.Storage)
		}
		if cfg.SQLiteDSN != "file:coordinator.db?_pragma=foreign_keys(1)" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.Model != "gemini-2.0-flash" || cfg.SuggestionTimeout != 30*time.Second {
			t.Fatalf("unexpected model defaults: %q %s", cfg.Model, cfg.SuggestionTimeout)
		}
		if cfg.TokenIssuer != "meeting-coordinator" {
			t.Fatalf("unexpected issuer: %q", cfg.TokenIssuer)
		}
		if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
			t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
		}
		if cfg.OAuthEnabled() || cfg.CalDAV.Enabled() {
			t.Fatal("optional integrations should be disabled by default")
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnvironment(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "必須の環境変数が設定されていません: COORDINATOR_TOKEN_PUBLIC_KEY, GOOGLE_AI_API_KEY"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("requires conditional values", func(t *testing.T) {
		clearEnvironment(t)
		setRequired(t)
		t.Setenv("COORDINATOR_STORAGE", "postgres")
		t.Setenv("GOOGLE_OAUTH_CLIENT_ID", "client")
		t.Setenv("GOOGLE_OAUTH_CLIENT_SECRET", "secret")
		t.Setenv("COORDINATOR_CALDAV_URL", "https://dav.example.com")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error")
		}
		expected := "必須の環境変数が設定されていません: COORDINATOR_DATABASE_URL, COORDINATOR_STATE_SECRET, COORDINATOR_CALDAV_CALENDAR"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports invalid values", func(t *testing.T) {
		clearEnvironment(t)
		setRequired(t)
		t.Setenv("COORDINATOR_HTTP_PORT", "eighty")
		t.Setenv("COORDINATOR_STORAGE", "mongo")
		t.Setenv("COORDINATOR_SUGGESTION_TIMEOUT", "-1s")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error")
		}
		expected := "環境変数の値が不正です: COORDINATOR_HTTP_PORT, COORDINATOR_STORAGE, COORDINATOR_SUGGESTION_TIMEOUT"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnvironment(t)
		setRequired(t)
		t.Setenv("COORDINATOR_HTTP_PORT", "9090")
		t.Setenv("COORDINATOR_STORAGE", "postgres")
		t.Setenv("COORDINATOR_DATABASE_URL", "postgres://localhost/coordinator")
		t.Setenv("COORDINATOR_SUGGESTION_TIMEOUT", "45s")
		t.Setenv("COORDINATOR_WORKER_CONCURRENCY", "2")
		t.Setenv("COORDINATOR_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
		t.Setenv("COORDINATOR_CALDAV_URL", "https://dav.example.com")
		t.Setenv("COORDINATOR_CALDAV_CALENDAR", "/calendars/team/")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.SuggestionTimeout != 45*time.Second {
			t.Fatalf("expected timeout 45s, got %s", cfg.SuggestionTimeout)
		}
		if cfg.WorkerConcurrency != 2 {
			t.Fatalf("expected concurrency 2, got %d", cfg.WorkerConcurrency)
		}
		if cfg.DatabaseURL != "postgres://localhost/coordinator" {
			t.Fatalf("unexpected database url: %q", cfg.DatabaseURL)
		}
		if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example.com", "https://b.example.com"}) {
			t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
		}
		if !cfg.CalDAV.Enabled() || cfg.CalDAV.Calendar != "/calendars/team/" {
			t.Fatalf("unexpected caldav config: %+v", cfg.CalDAV)
		}
	})
}
