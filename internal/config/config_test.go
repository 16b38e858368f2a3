package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV", "PORT", "POSTGRESQL_URI", "JWT_SECRET", "GMAIL_USER", "GMAIL_PASS"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default Env=development, got %q", cfg.Env)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default Port=8080, got %q", cfg.Port)
	}
	if cfg.JWTSecret != "dev-secret-change-me" {
		t.Errorf("expected default JWTSecret, got %q", cfg.JWTSecret)
	}
	if cfg.DBURI != "" {
		t.Errorf("expected empty DBURI when POSTGRESQL_URI unset, got %q", cfg.DBURI)
	}
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORT", "9090")
	os.Setenv("ENV", "production")
	os.Setenv("POSTGRESQL_URI", "postgres://example/db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected overridden Port=9090, got %q", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected overridden Env=production, got %q", cfg.Env)
	}
	if cfg.DBURI != "postgres://example/db" {
		t.Errorf("expected overridden DBURI, got %q", cfg.DBURI)
	}
}
