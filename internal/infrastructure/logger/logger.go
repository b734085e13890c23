package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/erpledger/internal/domain"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds logger configuration.
type Config struct {
	Level   string
	Format  string
	Service string
	// Out defaults to stdout.
	Out io.Writer
}

// New creates the process logger. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	if cfg.Format == FormatConsole {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.Out != nil,
		}
	}

	lc := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Service != "" {
		lc = lc.Str("service", cfg.Service)
	}
	return lc.Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level.
func ParseLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// ForRequest returns base tagged with the actor and request id on ctx.
func ForRequest(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	meta := domain.RequestMetaFromContext(ctx)

	lc := base.With().Str("user_id", meta.UserID)
	if meta.RequestID != "" {
		lc = lc.Str("request_id", meta.RequestID)
	}
	if meta.IPAddress != "" {
		lc = lc.Str("ip", meta.IPAddress)
	}
	return lc.Logger()
}
