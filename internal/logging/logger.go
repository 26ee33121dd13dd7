package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar selects the log level when none is passed to Initialize.
// Unset means silent.
const LogLevelEnvVar = "APPLIANCECTL_LOG_LEVEL"

var logger = zap.NewNop()

// Initialize installs the global logger at level, falling back to
// LogLevelEnvVar. With neither set every entry is discarded.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder

	// stderr keeps logs out of command output
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

// InitializeFromEnv is Initialize with the level taken from LogLevelEnvVar.
func InitializeFromEnv() error {
	return Initialize("")
}

// ParseLevel maps debug, info, warn or error (any case) to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
}

// GetLogger returns the global logger.
func GetLogger() *zap.Logger {
	return logger
}

// Named returns a child of the global logger for a component.
func Named(component string) *zap.Logger {
	return logger.Named(component)
}

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Warn(msg, fields...) }

// LogRequest logs a completed REST call against the appliance.
// statusCode is zero when the request never got a response.
func LogRequest(l *zap.Logger, method, path string, statusCode int, duration time.Duration, err error) {
	msg := "REST request"
	if err != nil {
		msg = "REST request failed"
	}
	if ce := l.Check(zapcore.DebugLevel, msg); ce != nil {
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", duration),
		}
		if statusCode != 0 {
			fields = append(fields, zap.Int("status_code", statusCode))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		ce.Write(fields...)
	}
}

// Sync flushes buffered entries.
func Sync() {
	_ = logger.Sync()
}
