// Package logger builds the process-wide slog logger: human-readable text
// through charmbracelet/log, or one JSON entry per line for log pipelines.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	charmLog "github.com/charmbracelet/log"

	"tgflow/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// New builds the process logger. TGFLOW_LOG_FORMAT, TGFLOW_LOG_LEVEL and
// TGFLOW_LOG_ADD_SOURCE override cfg.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("logging env overrides: %w", err)
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	switch format := strings.ToLower(strings.TrimSpace(cfg.Format)); format {
	case "", formatText:
		pretty := charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(level),
			ReportTimestamp: true,
			ReportCaller:    cfg.AddSource,
			Formatter:       charmLog.TextFormatter,
		})
		return slog.New(pretty), nil
	case formatJSON:
		return slog.New(newEntryHandler(writer, level, cfg.AddSource)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

// parseLevel accepts slog level names ("debug", "INFO", "warn+2") and the
// "warning" alias. Empty means info.
func parseLevel(input string) (slog.Level, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(text, "warning") {
		return slog.LevelWarn, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
	return level, nil
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}
