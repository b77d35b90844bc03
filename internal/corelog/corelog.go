// Package corelog provides the structured logger used across the
// analytics core: a thin zap wrapper so components log consistently
// without each depending on zap's construction details.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package corelog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger at the given level. Valid
// levels: "debug", "info", "warn", "error"; anything else falls back
// to "info".
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		// accepted spelling
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Noop returns a logger that discards everything, for tests and
// callers that don't want core log output.
func Noop() *zap.Logger {
	return zap.NewNop()
}
