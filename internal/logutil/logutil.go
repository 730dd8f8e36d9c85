// Package logutil builds slog loggers from viper settings.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config mirrors the logging.* keys.
type Config struct {
	Level     string
	Format    string
	AddSource bool
}

// ConfigFromViper reads logging.level, logging.format and logging.add_source.
// The debug flag lowers the level to debug when logging.level is unset.
func ConfigFromViper(v *viper.Viper) Config {
	cfg := Config{
		Level:     v.GetString("logging.level"),
		Format:    v.GetString("logging.format"),
		AddSource: v.GetBool("logging.add_source"),
	}
	if strings.TrimSpace(cfg.Level) == "" && v.GetBool("debug") {
		cfg.Level = "debug"
	}
	return cfg
}

// LoggerFromViper builds a logger writing to w.
func LoggerFromViper(v *viper.Viper, w io.Writer) (*slog.Logger, error) {
	return New(ConfigFromViper(v), w)
}

// New builds a text or JSON logger writing to w.
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", cfg.Format)
	}
	return slog.New(h), nil
}

// ParseLevel maps debug, info, warn and error to slog levels. The empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}
