// Package logging builds the console zap logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production JSON logger at level. An empty level means info.
func New(level string, opts ...zap.Option) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level.SetLevel(lvl)
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build(opts...)
}

// Must is New that panics on error.
func Must(level string, opts ...zap.Option) *zap.Logger {
	logger, err := New(level, opts...)
	if err != nil {
		panic(err)
	}
	return logger
}
