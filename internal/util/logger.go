package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger builds the process-wide logger for the catalog sync service:
// JSON output in production, colored console output everywhere else. Every
// entry carries the service name so fleet-wide log queries can filter on it.
func InitLogger(env string) error {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := config.Build(zap.Fields(zap.String("service", "catalog-sync")))
	if err != nil {
		return err
	}

	logger = built
	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the shared logger. Before InitLogger runs it falls back
// to a development logger, which keeps package construction and tests working
// without setup.
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes buffered entries; called once on shutdown.
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
