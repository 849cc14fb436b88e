package logger

import (
	"go.uber.org/zap"

	"fdp/internal/config"
)

// New builds the service logger. Development mode switches to the console
// encoder with stack traces on warnings; production emits JSON.
func New(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level

	return zc.Build(zap.Fields(zap.String("service", "fdp-awareness")))
}
