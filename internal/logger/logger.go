package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the root logger. Services derive scoped loggers from it
// via With().Str("service", ...).
func New() zerolog.Logger {
	// For Google Cloud Logging, the level field name should be "severity"
	// so log levels are parsed automatically.
	zerolog.LevelFieldName = "severity"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// ConsoleWriter for local development for more readable logs.
	if os.Getenv("ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	return logger
}
