package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the global zerolog logger. Debug mode gets the
// human-friendly console writer, everything else JSON.
func InitLogger(mode, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var logger zerolog.Logger
	if mode == "debug" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Str("app", "relay").Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Str("app", "relay").Logger()
	}
	log.Logger = logger
	return logger
}
