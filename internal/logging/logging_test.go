package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		env   string
		want  zapcore.Level
	}{
		{"debug", "development", zapcore.DebugLevel},
		{"warn", "production", zapcore.WarnLevel},
		{"error", "", zapcore.ErrorLevel},
		{"bogus", "development", zapcore.InfoLevel},
		{"", "production", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.env, func(t *testing.T) {
			logger, err := New(tt.level, tt.env)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			defer logger.Sync() //nolint:errcheck

			if !logger.Core().Enabled(tt.want) {
				t.Errorf("expected level %v to be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("expected level %v to be disabled", tt.want-1)
			}
		})
	}
}

func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := WithComponent(zap.New(core), "sender")

	logger.Info("batch delivered")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "sender" {
		t.Errorf("component = %v, want sender", got)
	}
}
