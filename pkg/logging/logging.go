// Package logging bootstraps the process-wide zerolog logger, replacing
// the teacher's bare log.Printf calls (internal/api/middleware/request_logger.go,
// cmd/server/main.go) with structured logging throughout.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. env is typically
// "development" or "production"; in development output is rendered
// through zerolog's console writer, in production it stays newline-
// delimited JSON for log aggregation.
func Setup(env, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var logger zerolog.Logger
	if strings.EqualFold(env, "development") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
			With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	log.Logger = logger
}
