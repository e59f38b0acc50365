package utils

import (
	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFile configures rotated file output in addition to stderr.
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LoggerOption configures NewLogger.
type LoggerOption func(*loggerOptions)

type loggerOptions struct {
	file *LogFile
}

// WithFile tees log output into a size-rotated JSON file.
func WithFile(f LogFile) LoggerOption {
	return func(o *loggerOptions) {
		if f.Path != "" {
			o.file = &f
		}
	}
}

// NewLogger returns a zap logger. When debug is true, uses development config
// (human-readable, debug level); otherwise uses production config (JSON, info level).
func NewLogger(debug bool, opts ...LoggerOption) (*zap.Logger, error) {
	var o loggerOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	if o.file == nil {
		return cfg.Build()
	}
	rotator := &lumberjack.Logger{
		Filename:   o.file.Path,
		MaxSize:    o.file.MaxSizeMB,
		MaxBackups: o.file.MaxBackups,
		MaxAge:     o.file.MaxAgeDays,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotator),
		cfg.Level,
	)
	return cfg.Build(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
}
