package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries at every level, trace included, without any
// redaction so tests can see exactly what callers passed.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), level: zap.NewAtomicLevelAt(TraceLevel), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// Entries returns the recorded entries whose message contains snippet.
// An empty snippet returns everything.
func (t *TestLogger) Entries(snippet string) []observer.LoggedEntry {
	return t.logs.FilterMessageSnippet(snippet).All()
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() { t.logs.TakeAll() }

// AssertLogged fails unless some entry at level has a message containing
// snippet.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	for _, e := range t.Entries(snippet) {
		if e.Level == level {
			return
		}
	}
	var got []string
	for _, e := range t.logs.All() {
		got = append(got, e.Level.String()+": "+e.Message)
	}
	tb.Errorf("no %s entry containing %q; recorded %q", level, snippet, got)
}

// AssertField fails unless an entry whose message contains snippet has
// key set to want.
func (t *TestLogger) AssertField(tb testing.TB, snippet, key string, want interface{}) {
	tb.Helper()
	for _, e := range t.Entries(snippet) {
		if got, ok := e.ContextMap()[key]; ok && got == want {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%v", snippet, key, want)
}

// AssertNoSecrets fails when a string field carries a value the default
// redaction rules would have rewritten. Callers are expected to pass such
// values through Secret, RedactedString or Content themselves.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	r, err := newRedactor(NewDefaultConfig().Redaction)
	if err != nil {
		tb.Fatalf("building redactor: %v", err)
	}
	for _, e := range t.logs.All() {
		if r.str("", e.Message) != e.Message {
			tb.Errorf("message %q matches a redaction pattern", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType || alreadyRedacted(f.String) {
				continue
			}
			if r.str(f.Key, f.String) != f.String {
				tb.Errorf("entry %q: field %s logged in the clear", e.Message, f.Key)
			}
		}
	}
}

func alreadyRedacted(v string) bool {
	return strings.HasPrefix(v, "[REDACTED") || strings.HasPrefix(v, "[CONTENT:")
}
