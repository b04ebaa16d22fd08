package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Secret creates a field for a config.Secret that records only its length.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val.Value()))+"]")
}

// RedactedString creates a field with the value replaced by its length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// Content creates a field for user text (questions, answers, chunks) that
// records its length and a short digest, so repeated values can be matched
// across log lines without the text itself being written.
func Content(key, val string) zap.Field {
	return zap.String(key, digest(val))
}

func digest(val string) string {
	sum := sha256.Sum256([]byte(val))
	return "[CONTENT:" + strconv.Itoa(len(val)) + ":" + hex.EncodeToString(sum[:4]) + "]"
}

type redaction int

const (
	keep redaction = iota
	hide
	summarize
)

// redactor holds the compiled rules shared by the console encoder and the
// OTEL core.
type redactor struct {
	keys     map[string]redaction
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	r := &redactor{keys: make(map[string]redaction, len(cfg.Fields)+len(cfg.ContentFields))}
	for _, f := range cfg.ContentFields {
		r.keys[strings.ToLower(f)] = summarize
	}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = hide
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) ruleFor(key string) redaction {
	if r == nil {
		return keep
	}
	return r.keys[strings.ToLower(key)]
}

// str applies key rules first, then value patterns.
func (r *redactor) str(key, val string) string {
	switch r.ruleFor(key) {
	case hide:
		return "[REDACTED]"
	case summarize:
		return digest(val)
	}
	if r != nil {
		for _, re := range r.patterns {
			if re.MatchString(val) {
				return "[REDACTED:pattern]"
			}
		}
	}
	return val
}

// field rewrites f for sinks that take zap fields rather than an encoder.
// Values the redactor cannot inspect are hidden whenever their key has a
// rule.
func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if r == nil {
		return f
	}
	switch f.Type {
	case zapcore.StringType:
		return zap.String(f.Key, r.str(f.Key, f.String))
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok && r.ruleFor(f.Key) != keep {
			return zap.String(f.Key, r.str(f.Key, string(b)))
		}
	case zapcore.ReflectType, zapcore.ObjectMarshalerType, zapcore.ArrayMarshalerType,
		zapcore.StringerType, zapcore.InlineMarshalerType:
		if r.ruleFor(f.Key) != keep {
			return zap.String(f.Key, "[REDACTED]")
		}
	}
	return f
}

func (r *redactor) fields(in []zapcore.Field) []zapcore.Field {
	if r == nil || len(in) == 0 {
		return in
	}
	out := make([]zapcore.Field, len(in))
	for i, f := range in {
		out[i] = r.field(f)
	}
	return out
}

// RedactingEncoder hides secret fields and summarizes user content fields
// before they reach the wrapped encoder.
type RedactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

// NewRedactingEncoder wraps an encoder with redaction rules.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	r, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, r: r}, nil
}

func (e *RedactingEncoder) AddString(key, val string) {
	e.Encoder.AddString(key, e.r.str(key, val))
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.r.ruleFor(key) == keep {
		e.Encoder.AddByteString(key, val)
		return
	}
	e.Encoder.AddString(key, e.r.str(key, string(val)))
}

func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.r.ruleFor(key) != keep {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.r.ruleFor(key) != keep {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.r.ruleFor(key) != keep {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}

// redactingCore applies the rules to fields before an inner core that
// does its own encoding, such as the OTEL bridge.
type redactingCore struct {
	zapcore.Core
	r *redactor
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.r.fields(fields)), r: c.r}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.r.fields(fields))
}
