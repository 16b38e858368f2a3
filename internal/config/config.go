// Package config loads process configuration from the environment,
// adapted from the teacher's cmd/server/main.go (godotenv.Load +
// os.Getenv reads for POSTGRESQL_URI/PORT).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Env    string
	Port   string
	DBURI  string // empty selects the in-memory repository
	JWTSecret string

	GmailUser string
	GmailPass string

	HoldExpiryInterval time.Duration
	ReconcileInterval  time.Duration
}

// Load reads .env (if present) then the environment, mirroring the
// teacher's "No .env file found — continuing with environment variables"
// tolerance.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("config: no .env file found, continuing with environment variables")
	}

	cfg := Config{
		Env:                getenv("ENV", "development"),
		Port:               getenv("PORT", "8080"),
		DBURI:              os.Getenv("POSTGRESQL_URI"),
		JWTSecret:          getenv("JWT_SECRET", "dev-secret-change-me"),
		GmailUser:          os.Getenv("GMAIL_USER"),
		GmailPass:          os.Getenv("GMAIL_PASS"),
		HoldExpiryInterval: 30 * time.Second,
		ReconcileInterval:  time.Hour,
	}

	if cfg.Port == "" {
		return cfg, fmt.Errorf("config: PORT must not be empty")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
