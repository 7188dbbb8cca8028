package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the process logger is built
type Config struct {
	Level   string
	Service string
	Stdout  io.Writer
	Stderr  io.Writer
	// JSON disables the console writer, for log shippers
	JSON bool
}

// New builds the process logger. Debug, info and warn go to stdout; error
// and above go to stderr.
func New(cfg Config) zerolog.Logger {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	var out, errOut io.Writer = cfg.Stdout, cfg.Stderr
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: cfg.Stdout, TimeFormat: time.RFC3339}
		errOut = zerolog.ConsoleWriter{Out: cfg.Stderr, TimeFormat: time.RFC3339}
	}

	writer := zerolog.MultiLevelWriter(
		SpecificLevelWriter{
			Writer: out,
			Levels: []zerolog.Level{
				zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel,
			},
		},
		SpecificLevelWriter{
			Writer: errOut,
			Levels: []zerolog.Level{
				zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel,
			},
		},
	)

	ctx := zerolog.New(writer).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return ctx.Logger()
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// multilevel writer from https://stackoverflow.com/questions/76858037/how-to-use-zerolog-to-filter-info-logs-to-stdout-and-error-logs-to-stderr
type SpecificLevelWriter struct {
	io.Writer
	Levels []zerolog.Level
}

func (w SpecificLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.Levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
