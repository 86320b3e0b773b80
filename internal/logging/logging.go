package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap-backed logr.Logger. format is "json" (default) or
// "console". logr verbosity V(n) maps to zap level -n, so "debug" enables V(1).
func New(level, format string) (logr.Logger, func() error, error) {
	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return logr.Discard(), nil, fmt.Errorf("unknown log format: %s", format)
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), nil, err
	}
	return zapr.NewLogger(z), z.Sync, nil
}
