package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferedLogger(level LogLevel) (*bytes.Buffer, Logger) {
	buf := &bytes.Buffer{}
	return buf, NewStandardLogger(log.New(buf, "", 0), level, "[test]")
}

func TestLevelFiltering(t *testing.T) {
	buf, l := newBufferedLogger(Warn)

	l.Debug("debug msg")
	l.Info("info msg")
	l.Warn("warn msg")
	l.Error("error msg")

	out := buf.String()
	assert.NotContains(t, out, "debug msg")
	assert.NotContains(t, out, "info msg")
	assert.Contains(t, out, "[WARN] warn msg")
	assert.Contains(t, out, "[ERROR] error msg")
}

func TestKeyValueFormatting(t *testing.T) {
	buf, l := newBufferedLogger(Info)

	l.Info("message dispatched", "gateway", "twilio", "recipients", 3)
	assert.Contains(t, buf.String(), "gateway=twilio")
	assert.Contains(t, buf.String(), "recipients=3")

	buf.Reset()
	l.Info("dangling key", "orphan")
	assert.Contains(t, buf.String(), "orphan=(no value)")
}

func TestLogMode_ReturnsNewInstance(t *testing.T) {
	buf, l := newBufferedLogger(Silent)

	l.Error("suppressed")
	assert.Empty(t, buf.String())

	verbose := l.LogMode(Debug)
	verbose.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")

	// The original keeps its level.
	buf.Reset()
	l.Error("still suppressed")
	assert.Empty(t, buf.String())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Debug("x", "k", "v")
		Discard.Info("x")
		Discard.Warn("x")
		Discard.Error("x")
		Discard.LogMode(Debug).Info("x")
	})
}
