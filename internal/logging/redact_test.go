package logging

import (
	"context"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeWithRedaction(t *testing.T, fields ...zap.Field) string {
	t.Helper()
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	for _, f := range fields {
		f.AddTo(enc)
	}
	out, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, nil)
	require.NoError(t, err)
	return out.String()
}

func TestRedactingEncoder(t *testing.T) {
	tests := []struct {
		name    string
		field   zap.Field
		want    string
		notWant string
	}{
		{"sensitive key", zap.String("api_key", "sk-abc"), `"api_key":"[REDACTED]"`, "sk-abc"},
		{"case insensitive key", zap.String("Authorization", "Basic x"), `"Authorization":"[REDACTED]"`, "Basic x"},
		{"bearer pattern", zap.String("header", "Bearer abc.def"), `"header":"[REDACTED:pattern]"`, "abc.def"},
		{"plain value", zap.String("document_id", "doc-1"), `"document_id":"doc-1"`, ""},
		{"reflected", zap.Any("token", map[string]string{"a": "b"}), `"token":"[REDACTED]"`, `"a":"b"`},
		{"user content", zap.String("question", "What CRM do we use?"), `"question":"[CONTENT:19:`, "CRM"},
		{"user content bytes", zap.ByteString("chunk", []byte("quarterly revenue")), `"chunk":"[CONTENT:17:`, "revenue"},
		{"reflected content", zap.Any("answer", []string{"HubSpot"}), `"answer":"[REDACTED]"`, "HubSpot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := encodeWithRedaction(t, tt.field)
			assert.Contains(t, out, tt.want)
			if tt.notWant != "" {
				assert.NotContains(t, out, tt.notWant)
			}
		})
	}
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	require.Error(t, err)
}

func TestContentField(t *testing.T) {
	a := Content("question", "What CRM do we use?")
	b := Content("question", "What CRM do we use?")
	c := Content("question", "Who is on call?")

	assert.Regexp(t, `^\[CONTENT:19:[0-9a-f]{8}\]$`, a.String)
	assert.Equal(t, a.String, b.String, "same text gives the same digest")
	assert.NotEqual(t, a.String, c.String)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)
	zap.String("question", "plain").AddTo(enc)
	out, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"question":"plain"`)
}

func TestSecretField(t *testing.T) {
	f := Secret("openai_key", config.Secret("sk-12345"))
	assert.Equal(t, "[REDACTED:8]", f.String)

	tl := NewTestLogger()
	tl.Info(context.Background(), "configured", f, RedactedString("password", "hunter2"))
	tl.AssertNoSecrets(t)
}

type recordingTB struct {
	testing.TB
	failures []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestAssertNoSecrets_CatchesLeaks(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "question answered",
		zap.String("question", "what is our churn?"),
		zap.String("token", "abc"),
		Content("answer", "12%"),
	)

	rec := &recordingTB{TB: t}
	tl.AssertNoSecrets(rec)
	require.Len(t, rec.failures, 2)
	assert.Contains(t, rec.failures[0], "question")
	assert.Contains(t, rec.failures[1], "token")
}
