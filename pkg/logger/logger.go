// Package logger wraps zap for the engine's structured logs.
//
// Every line written through WithContext carries the trace and request ids
// and the origin of the call (manual, automatic or cli).
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "commesse/internal/core/context"
)

// Logger is a zap.SugaredLogger with engine helpers.
type Logger struct {
	*zap.SugaredLogger
}

// Config selects level and encoding.
type Config struct {
	Level       string // debug, info, warn, error; unknown values mean info
	Development bool   // console encoding with colored levels
}

// New builds a Logger writing to stderr.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z.Sugar()}, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

var (
	fallbackOnce sync.Once
	fallback     *Logger
)

// Default is the process-wide production logger used when a component is given nil.
func Default() *Logger {
	fallbackOnce.Do(func() {
		z, err := zap.NewProduction()
		if err != nil {
			z = zap.NewNop()
		}
		fallback = &Logger{z.Sugar()}
	})
	return fallback
}

// WithContext tags the logger with trace ids and call origin from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	s := l.SugaredLogger
	if tc := appctx.GetTrace(ctx); tc != nil {
		s = s.With("trace_id", tc.TraceID, "request_id", tc.RequestID)
	}
	return &Logger{s.With("origin", string(appctx.GetOrigin(ctx)))}
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}
