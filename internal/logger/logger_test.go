package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestToZapLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		DebugLevel: zapcore.DebugLevel,
		InfoLevel:  zapcore.InfoLevel,
		WarnLevel:  zapcore.WarnLevel,
		ErrorLevel: zapcore.ErrorLevel,
		"verbose":  zapcore.InfoLevel,
		"":         zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, toZapLevel(in), "level %q", in)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	l := New(WarnLevel)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.WarnLevel))

	named := l.Named("mqtt")
	assert.Equal(t, "mqtt", named.Desugar().Name())
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Infow("discarded", "k", 1)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.ErrorLevel))
}
