package config_test

import (
	"testing"

	"github.com/johnwards/graphmirror/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DatabasePath != "mirror.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "mirror.db")
	}
	if cfg.Endpoint != "https://api.github.com/graphql" {
		t.Errorf("Endpoint = %q, want github graphql endpoint", cfg.Endpoint)
	}
	if cfg.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", cfg.PageSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Token != "" {
		t.Errorf("Token = %q, want empty", cfg.Token)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GRAPHMIRROR_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("GRAPHMIRROR_GRAPHQL_TOKEN", "secret-token")
	t.Setenv("GRAPHMIRROR_GRAPHQL_PAGE_SIZE", "25")

	cfg, err := config.Load(config.NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "/tmp/test.db")
	}
	if cfg.Token != "secret-token" {
		t.Errorf("Token = %q, want %q", cfg.Token, "secret-token")
	}
	if cfg.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", cfg.PageSize)
	}
}

func TestLoadRejectsBadPageSize(t *testing.T) {
	t.Setenv("GRAPHMIRROR_GRAPHQL_PAGE_SIZE", "0")

	if _, err := config.Load(config.NewViper()); err == nil {
		t.Fatal("expected error for page size 0")
	}

	t.Setenv("GRAPHMIRROR_GRAPHQL_PAGE_SIZE", "101")

	if _, err := config.Load(config.NewViper()); err == nil {
		t.Fatal("expected error for page size 101")
	}
}
