// Package logging constructs the application's zerolog logger.
//
// Facet logs structured JSON to stderr so an HMI supervisor can ship the
// stream elsewhere. The logger is built once at startup and passed down
// explicitly; no package keeps a global logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level and output.
type Config struct {
	Level string // zerolog level name; empty means "info"
	Debug bool   // forces debug level regardless of Level
}

// New builds a leveled JSON logger writing to w (stderr when nil).
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Logger{}, err
		}
		level = parsed
	}

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, nil
}
