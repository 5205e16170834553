package cmd

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// LevelCritical sits above slog.LevelError for CRITICAL log levels.
const LevelCritical = slog.LevelError + 4

// NewLogger returns a JSON logger whose timestamps are rendered in loc.
func NewLogger(w io.Writer, level slog.Leveler, loc *time.Location) *slog.Logger {
	if loc == nil {
		loc = time.Local
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().In(loc).Format(time.RFC3339))
			}
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if l, ok := a.Value.Any().(slog.Level); ok && l >= LevelCritical {
					a.Value = slog.StringValue("CRITICAL")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewBootstrapLogger returns the logger used until the configuration is
// parsed. Timestamps use TZ, the default timezone when unset and UTC when
// TZ is invalid.
func NewBootstrapLogger(w io.Writer, getenv func(string) string) *slog.Logger {
	loc, err := time.LoadLocation(cmp.Or(getenv(envTimezone), DefaultTimezone))
	if err != nil {
		loc = time.UTC
	}
	return NewLogger(w, slog.LevelInfo, loc)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARNING":
		return slog.LevelWarn, nil
	case "CRITICAL", "FATAL":
		return LevelCritical, nil
	case "":
		return slog.LevelInfo, fmt.Errorf("empty log level")
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}
