// Package stdout implements log.Logger over zap, writing JSON lines to
// standard out, adapted from the gateway's internal/log/driver/stdout.
package stdout

import (
	"context"
	"os"
	"time"

	"github.com/songzhibin97/handlerchain/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the stdout backend.
type Config struct {
	Level        log.Level
	EnableCaller bool
	Development  bool
}

// DefaultConfig returns the backend's default configuration.
func DefaultConfig() *Config {
	return &Config{Level: log.InfoLevel}
}

// Logger implements log.Logger backed by a *zap.Logger.
type Logger struct {
	zap *zap.Logger
}

// New builds a Logger from cfg, defaulting cfg to DefaultConfig() when nil.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		convertLevel(cfg.Level),
	)

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{zap: zap.New(core, opts...)}, nil
}

func (l *Logger) Debug(msg string, fields ...log.Field) { l.zap.Debug(msg, toZap(fields)...) }
func (l *Logger) Info(msg string, fields ...log.Field)  { l.zap.Info(msg, toZap(fields)...) }
func (l *Logger) Warn(msg string, fields ...log.Field)  { l.zap.Warn(msg, toZap(fields)...) }
func (l *Logger) Error(msg string, fields ...log.Field) { l.zap.Error(msg, toZap(fields)...) }

func (l *Logger) With(fields ...log.Field) log.Logger {
	return &Logger{zap: l.zap.With(toZap(fields)...)}
}

func (l *Logger) WithContext(ctx context.Context) log.Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return l
	}
	return &Logger{zap: l.zap.With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)}
}

func toZap(fields []log.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out = append(out, zap.Error(v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func convertLevel(l log.Level) zapcore.Level {
	switch l {
	case log.DebugLevel:
		return zapcore.DebugLevel
	case log.WarnLevel:
		return zapcore.WarnLevel
	case log.ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
