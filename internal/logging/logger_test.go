package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{level: "", enabled: zapcore.InfoLevel, off: zapcore.DebugLevel},
		{level: "debug", enabled: zapcore.DebugLevel, off: zapcore.DebugLevel - 1},
		{level: "warn", enabled: zapcore.WarnLevel, off: zapcore.InfoLevel},
		{level: "error", enabled: zapcore.ErrorLevel, off: zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(tt.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			core := logger.Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("expected %v to be enabled", tt.enabled)
			}
			if core.Enabled(tt.off) {
				t.Errorf("expected %v to be disabled", tt.off)
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestMust_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	Must("loud")
}
