package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(t *testing.T, cfg RedactionConfig) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	enc, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.NoError(t, err)
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel)
	return &Logger{zap: zap.New(core), config: NewDefaultConfig()}, &buf
}

func TestRedactingEncoder_EntryFields(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig().Redaction)

	logger.Info(context.Background(), "connecting",
		zap.String("api_key", "sk-live-123"),
		zap.String("header", "Bearer abc.def"),
		zap.String("url", "http://localhost:6334"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-live-123")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"header":"[REDACTED:pattern]"`)
	assert.Contains(t, out, "http://localhost:6334")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig().Redaction)

	logger.With(zap.String("Authorization", "token")).Info(context.Background(), "request")

	assert.Contains(t, buf.String(), `"Authorization":"[REDACTED]"`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	logger, buf := newBufferLogger(t, RedactionConfig{Enabled: false})

	logger.Info(context.Background(), "plain", zap.String("api_key", "visible"))

	assert.Contains(t, buf.String(), "visible")
}

func TestRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"[unclosed"},
	})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "store configured",
		Secret("qdrant_key", config.Secret("abcdef")),
		Secret("unset", config.Secret("")),
	)

	tl.AssertField(t, "store configured", "qdrant_key", "[REDACTED:6]")
	tl.AssertField(t, "store configured", "unset", "")
}

func TestRedactedString(t *testing.T) {
	field := RedactedString("token", "1234567890")
	assert.Equal(t, "[REDACTED:10]", field.String)
}
