package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"dpanic":  zapcore.DPanicLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
		"warning": zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestInitReplacesNopLogger(t *testing.T) {
	prevLog, prevSugar := Log, Sugar
	defer func() {
		Log, Sugar = prevLog, prevSugar
	}()

	Init("debug")
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
	assert.NotNil(t, Sugar)
}
