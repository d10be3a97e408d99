package logger

import (
	"fmt"

	"threadspost/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

// Init builds the process-wide logger from config and installs it as the
// zap global as well.
func Init(cfg *config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	Log = l
	zap.ReplaceGlobals(l)
	return l, nil
}

// Named returns a child logger tagged with the component name, e.g.
// Named("PostDispatcher").
func Named(component string) *zap.Logger {
	return Log.With(zap.String("component", component))
}

func Sync() {
	_ = Log.Sync()
}
