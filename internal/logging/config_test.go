package logging

import (
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"TRACE", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"Info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTraceLevel_BelowDebug(t *testing.T) {
	assert.Less(t, int8(TraceLevel), int8(zapcore.DebugLevel))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "otel only", mutate: func(c *Config) { c.Output = OutputConfig{OTEL: true} }},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Format = "logfmt" },
			wantErr: []string{`got "logfmt"`},
		},
		{
			name: "several problems",
			mutate: func(c *Config) {
				c.Output = OutputConfig{}
				c.Sampling.Tick = 0
				c.Redaction.Patterns = []string{"("}
			},
			wantErr: []string{"at least one output", "sampling tick", "invalid redaction pattern"},
		},
		{
			name:    "pattern too long",
			mutate:  func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", 201)} },
			wantErr: []string{"longer than 200"},
		},
		{
			name:    "empty static field",
			mutate:  func(c *Config) { c.Fields["env"] = "" },
			wantErr: []string{`"env"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestFromAppConfig_TraceWithoutCaller(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "trace", Format: "console", Caller: false}, true)
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.False(t, cfg.Caller.Enabled)
	assert.True(t, cfg.Output.OTEL)
	assert.True(t, cfg.Output.Stdout)

	_, err = FromAppConfig(config.LoggingConfig{Level: "loud"}, false)
	require.Error(t, err)
}
