// Package logging wires zap behind the logr interface used across junction.
package logging

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logger.V
const (
	DEFAULT = 0
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// Options controls the process logger
type Options struct {
	// Verbosity is the highest V level that is emitted
	Verbosity int
	// Development switches to the console encoder with stack traces on warnings
	Development bool
}

// NewLogger builds a zap-backed logr.Logger
func NewLogger(opts Options) (logr.Logger, error) {
	var cfg uberzap.Config
	if opts.Development {
		cfg = uberzap.NewDevelopmentConfig()
	} else {
		cfg = uberzap.NewProductionConfig()
		cfg.Sampling = nil
	}
	// logr V(n) maps to zap level -n.
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-1 * opts.Verbosity))

	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// NewTestLogger creates a development logger that emits every level
func NewTestLogger() logr.Logger {
	logger, err := NewLogger(Options{Verbosity: TRACE, Development: true})
	if err != nil {
		return logr.Discard()
	}
	return logger
}

// IntoContext stores the logger in ctx
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// FromContext returns the logger stored in ctx, or a discard logger
func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}

// Fatal calls logger.Error followed by os.Exit(1).
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
