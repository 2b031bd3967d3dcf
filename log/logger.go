package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It is initialized once by the
// command layer before any other package runs.
var Logger *zap.Logger

func init() {
	// Safe default until InitLogger runs, keeps tests quiet.
	Logger = zap.NewNop()
}

func InitProductionLogger() {
	Logger, _ = zap.NewProduction()
}

func InitDevelopmentLogger() {
	Logger, _ = zap.NewDevelopment()
}

// InitLogger configures the global logger from the resolved config
// values. format is "json" or "text", level any zap level string.
func InitLogger(level, format string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	Logger, _ = cfg.Build()
}

func Sync() {
	_ = Logger.Sync()
}
