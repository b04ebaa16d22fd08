package logging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug and is used for per-chunk detail.
const TraceLevel = zapcore.Level(-2)

const maxPatternLength = 200

// Config describes how a Logger encodes and where it writes.
type Config struct {
	Level     zapcore.Level
	Format    string // json or console
	Output    OutputConfig
	Sampling  SamplingConfig
	Caller    CallerConfig
	Fields    map[string]string
	Redaction RedactionConfig
}

type OutputConfig struct {
	Stdout bool
	// Stderr moves the console stream to stderr, for commands whose stdout
	// carries output or a protocol.
	Stderr bool
	OTEL   bool
}

// SamplingConfig thins repeated entries below Error. Within each Tick the
// first Initial entries with a given message pass, then one in Thereafter.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

type CallerConfig struct {
	Enabled bool
	Skip    int
}

// RedactionConfig lists what never reaches a sink in the clear.
type RedactionConfig struct {
	Enabled bool
	// Fields are replaced with [REDACTED].
	Fields []string
	// ContentFields carry user text and are replaced with a length and digest.
	ContentFields []string
	// Patterns redact any string value they match.
	Patterns []string
}

// NewDefaultConfig is JSON on stdout at info, sampled, with redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:    zapcore.InfoLevel,
		Format:   "json",
		Output:   OutputConfig{Stdout: true},
		Sampling: SamplingConfig{Enabled: true, Tick: time.Second, Initial: 100, Thereafter: 10},
		Caller:   CallerConfig{Enabled: true, Skip: 1},
		Fields:   map[string]string{"service": "ragd"},
		Redaction: RedactionConfig{
			Enabled:       true,
			Fields:        []string{"password", "secret", "token", "api_key", "authorization", "bearer", "credential", "private_key"},
			ContentFields: []string{"question", "answer", "content", "chunk", "text"},
			Patterns:      []string{`(?i)bearer\s+\S+`, `(?i)api[_-]?key[=:]\s*\S+`},
		},
	}
}

// FromAppConfig applies the logging section of the ragd config file. OTEL
// output follows whether telemetry is on.
func FromAppConfig(lc config.LoggingConfig, telemetryEnabled bool) (*Config, error) {
	level, err := LevelFromString(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	cfg := NewDefaultConfig()
	cfg.Level = level
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	cfg.Sampling.Enabled = lc.Sampling
	cfg.Caller.Enabled = lc.Caller
	cfg.Output.OTEL = telemetryEnabled
	return cfg, nil
}

// LevelFromString parses a zap level name or "trace", ignoring case. On
// error it returns InfoLevel.
func LevelFromString(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Format != "json" && c.Format != "console" {
		errs = append(errs, fmt.Errorf("format must be json or console, got %q", c.Format))
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		errs = append(errs, errors.New("at least one output must be enabled (stdout or otel)"))
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		errs = append(errs, errors.New("sampling tick must be positive"))
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		errs = append(errs, fmt.Errorf("caller skip must not be negative, got %d", c.Caller.Skip))
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > maxPatternLength {
				errs = append(errs, fmt.Errorf("redaction pattern longer than %d characters", maxPatternLength))
				continue
			}
			if _, err := regexp.Compile(p); err != nil {
				errs = append(errs, fmt.Errorf("invalid redaction pattern %q: %w", p, err))
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			errs = append(errs, fmt.Errorf("static field %q=%q needs a key and a value", k, v))
		}
	}
	return errors.Join(errs...)
}
