package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "SQLITE_PATH", "REPORT_CACHE_TTL_SECONDS", "LOCK_TTL_SECONDS", "EXPORT_DIR", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.ReportTTL != 600*time.Second {
		t.Fatalf("expected 600s report ttl, got %s", cfg.ReportTTL)
	}
	if cfg.LockTTL != 10*time.Second {
		t.Fatalf("expected 10s lock ttl, got %s", cfg.LockTTL)
	}
	if cfg.ExportDir != "exports" {
		t.Fatalf("expected exports dir, got %q", cfg.ExportDir)
	}
	if cfg.StoreDriver() != "memory" {
		t.Fatalf("expected memory store, got %q", cfg.StoreDriver())
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "soon")
	t.Setenv("LOCK_TTL_SECONDS", "-4")

	cfg := Load()
	if cfg.ReportTTL != 600*time.Second || cfg.LockTTL != 10*time.Second {
		t.Fatalf("expected fallbacks, got %s and %s", cfg.ReportTTL, cfg.LockTTL)
	}
}

func TestStoreDriverPrefersPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("SQLITE_PATH", "ledger.db")
	if got := Load().StoreDriver(); got != "postgres" {
		t.Fatalf("expected postgres, got %q", got)
	}

	t.Setenv("DATABASE_URL", "")
	if got := Load().StoreDriver(); got != "sqlite" {
		t.Fatalf("expected sqlite, got %q", got)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(file, []byte("PORT=9999\nEXPORT_DIR=/tmp/ledger-exports\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "7000")
	t.Setenv("EXPORT_DIR", "")
	os.Unsetenv("EXPORT_DIR")

	if err := LoadDotEnv(file, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	cfg := Load()
	if cfg.Port != "7000" {
		t.Fatalf("expected environment to win, got %q", cfg.Port)
	}
	if cfg.ExportDir != "/tmp/ledger-exports" {
		t.Fatalf("expected dotenv value, got %q", cfg.ExportDir)
	}
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	logger := NewLogger(Config{LogLevel: "debug", LogFormat: "text"})
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", logger.Formatter)
	}

	fallback := NewLogger(Config{LogLevel: "loud"})
	if fallback.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", fallback.GetLevel())
	}
	if _, ok := fallback.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", fallback.Formatter)
	}
}
