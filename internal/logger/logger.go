package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and minimum level
type Config struct {
	Development bool
	Level       string // debug, info, warn, error; empty keeps the preset
}

// New creates a new zap logger
func New(c Config) (*zap.Logger, error) {
	var cfg zap.Config

	if c.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}

	return cfg.Build()
}

// Must creates a logger or panics
func Must(c Config) *zap.Logger {
	log, err := New(c)
	if err != nil {
		panic(err)
	}
	return log
}
