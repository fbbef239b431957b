package logger

import (
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	ServiceName string
	Debug       bool

	// Output defaults to stderr, stdout carries stream data.
	Output zapcore.WriteSyncer

	// ExportOTel also sends entries to the global OpenTelemetry logger provider.
	ExportOTel bool

	InitialFields []zap.Field
	Cores         []zapcore.Core
}

// New builds a JSON logger for the read-ahead tools.
func New(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	stderr := zapcore.Lock(os.Stderr)

	out := cfg.Output
	if out == nil {
		out = stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(GetEncoderConfig(zapcore.DefaultLineEnding)), out, level),
	}

	if cfg.ExportOTel {
		cores = append(cores,
			otelzap.NewCore(cfg.ServiceName, otelzap.WithLoggerProvider(global.GetLoggerProvider())),
		)
	}

	cores = append(cores, cfg.Cores...)

	return zap.New(zapcore.NewTee(cores...),
		zap.ErrorOutput(stderr),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("service", cfg.ServiceName),
			zap.Int("pid", os.Getpid()),
		),
		zap.Fields(cfg.InitialFields...),
	)
}

func GetEncoderConfig(lineEnding string) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		MessageKey:    "message",
		LevelKey:      "level",
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		NameKey:       "logger",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339TimeEncoder,
		LineEnding:    lineEnding,
	}
}
