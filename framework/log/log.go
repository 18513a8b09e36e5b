// Package log builds the application's zap logger from configuration.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-foundation/framework/config"
)

// New creates a logger for env. Production uses the JSON encoder and info
// level; every other environment uses the development console encoder and
// debug level. cfg.Level and cfg.Format override both.
func New(cfg config.LogConfig, env string) (*zap.Logger, error) {
	var zc zap.Config
	if env == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	switch cfg.Format {
	case "":
	case "json", "console":
		zc.Encoding = cfg.Format
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	return zc.Build()
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger { return zap.NewNop() }
