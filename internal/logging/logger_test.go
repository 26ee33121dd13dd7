package logging

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is configured")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}

	core := GetLogger().Core()
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn level should be enabled")
	}
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info level should be disabled")
	}
}

func TestInitializeUnknownLevel(t *testing.T) {
	if err := Initialize("chatty"); err == nil {
		t.Error("Initialize() should reject unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"WARN", zapcore.WarnLevel},
		{" warning ", zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := ParseLevel(tt.level)
			if err != nil {
				t.Fatalf("ParseLevel(%q) error = %v", tt.level, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestLogRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	LogRequest(l, "GET", "/tm/sys/available", 200, 15*time.Millisecond, nil)
	LogRequest(l, "POST", "/tm/cm", 0, time.Second, errors.New("connection refused"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}

	if entries[0].Message != "REST request" {
		t.Errorf("first message = %q, want %q", entries[0].Message, "REST request")
	}
	if entries[0].ContextMap()["status_code"] != int64(200) {
		t.Errorf("status_code = %v, want 200", entries[0].ContextMap()["status_code"])
	}

	if entries[1].Message != "REST request failed" {
		t.Errorf("second message = %q, want %q", entries[1].Message, "REST request failed")
	}
	if _, ok := entries[1].ContextMap()["status_code"]; ok {
		t.Error("status_code should be omitted when no response was received")
	}
}
