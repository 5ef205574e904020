package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"coinspread/internal/config"
)

var Logger zerolog.Logger

// Init initializes the global logger with the provided configuration.
func Init(cfg config.LogConfig, logsDir string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(cfg.TimeFormat) {
	case "rfc3339":
		zerolog.TimeFieldFormat = time.RFC3339
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "iso8601":
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	case "file":
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		path := filepath.Join(logsDir, "coinspread.log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file '%s': %w", path, err)
		}
		output = file
	default:
		output = os.Stdout
	}

	if strings.ToLower(cfg.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	// Also set the global zerolog logger for compatibility
	log.Logger = Logger

	Logger.Info().
		Str("level", cfg.Level).
		Str("format", cfg.Format).
		Str("output", cfg.Output).
		Msg("Logger initialized")

	return nil
}

// Get returns the configured logger instance.
func Get() *zerolog.Logger {
	return &Logger
}

// Convenience methods for common logging patterns
func Info() *zerolog.Event {
	return Logger.Info()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
