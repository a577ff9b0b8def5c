package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tc := range testCases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, env := range []string{"development", "production", ""} {
		logger, err := New(env, "warn")
		if err != nil {
			t.Fatalf("New(%q): %v", env, err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("New(%q): info should be disabled at warn", env)
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("New(%q): error should be enabled at warn", env)
		}
	}
}
