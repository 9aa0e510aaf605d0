package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	log := New("test", false)
	core := log.Desugar().Core()
	if core.Enabled(zapcore.DebugLevel) {
		t.Error("debug-level logging should be disabled by default")
	}
	if !core.Enabled(zapcore.InfoLevel) {
		t.Error("info-level logging should be enabled by default")
	}
}

func TestNewDebugEnablesDebugLevel(t *testing.T) {
	log := New("test", true)
	core := log.Desugar().Core()
	if !core.Enabled(zapcore.DebugLevel) {
		t.Error("debug-level logging should be enabled when debug=true")
	}
}

func TestNopDiscardsWithoutPanicking(t *testing.T) {
	log := Nop()
	log.Infow("should not panic", "key", "value")
	log.Errorw("should not panic either", "err", "boom")
}
