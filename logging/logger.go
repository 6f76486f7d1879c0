package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string
	Development bool
	OutputPaths []string
}

func New(config Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		return nil, err
	}
	if len(config.OutputPaths) == 0 {
		config.OutputPaths = []string{"stderr"}
	}

	encoder := zap.NewProductionEncoderConfig()
	encoding := "json"
	if config.Development {
		encoder = zap.NewDevelopmentEncoderConfig()
		encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoding = "console"
	}

	return zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       config.Development,
		Encoding:          encoding,
		EncoderConfig:     encoder,
		OutputPaths:       config.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}.Build()
}

// OrNop substitutes a no-op logger for nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
