package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger      *zap.Logger
	loggerLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

func InitLogger(cfg LogConfig) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	loggerLevel.SetLevel(level)
	zapCfg.Level = loggerLevel
	if cfg.OutputPath != "" {
		zapCfg.OutputPaths = []string{cfg.OutputPath}
	}

	built, err := zapCfg.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}
	logger = built
	return nil
}

// SetLogger swaps the global logger, mostly for tests.
func SetLogger(l *zap.Logger) {
	logger = l
}

// L returns the global logger, falling back to a production logger.
func L() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewProduction(zap.AddCallerSkip(1))
	}
	return logger
}

func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}

func LogInfo(message string, fields ...zap.Field) {
	L().Info(message, fields...)
}

func LogWarning(message string, fields ...zap.Field) {
	L().Warn(message, fields...)
}

func LogError(message string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	L().Error(message, fields...)
}

func LogFatal(message string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	L().Fatal(message, fields...)
}
