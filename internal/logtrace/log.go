package logtrace

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Setup installs the process-wide logger. env "dev" gets a console encoder,
// anything else JSON. Unknown levels fall back to info.
func Setup(serviceName, env, level string) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	built, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return
	}
	built = built.With(zap.String("service", serviceName))

	mu.Lock()
	old := logger
	logger = built
	mu.Unlock()
	_ = old.Sync()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = logger.Sync()
}

func Debug(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.ErrorLevel, msg, fields)
}

// Fatal logs and exits the process.
func Fatal(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.FatalLevel, msg, fields)
}

func write(ctx context.Context, level zapcore.Level, msg string, fields Fields) {
	mu.RLock()
	l := logger
	mu.RUnlock()

	if ce := l.Check(level, msg); ce != nil {
		zf := make([]zap.Field, 0, len(fields)+1)
		if cid := extractCorrelationID(ctx); cid != "unknown" {
			zf = append(zf, zap.String(FieldCorrelationID, cid))
		}
		for k, v := range fields {
			zf = append(zf, zap.Any(k, v))
		}
		ce.Write(zf...)
	}
}
