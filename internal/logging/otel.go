package logging

import (
	"errors"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const bridgeScope = "github.com/fyrsmithlabs/ragd"

// newCore tees the console stream and the OTEL bridge, both gated by level
// and both redacted. The OTEL side is skipped while no provider exists.
func newCore(cfg *Config, level zap.AtomicLevel, provider log.LoggerProvider) (zapcore.Core, error) {
	r, err := newRedactor(cfg.Redaction)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if cfg.Output.Stdout {
		sink := zapcore.Lock(os.Stdout)
		if cfg.Output.Stderr {
			sink = zapcore.Lock(os.Stderr)
		}
		enc := &RedactingEncoder{Encoder: newEncoder(cfg.Format), r: r}
		cores = append(cores, zapcore.NewCore(enc, sink, level))
	}
	if cfg.Output.OTEL && provider != nil {
		bridge := otelzap.NewCore(bridgeScope, otelzap.WithLoggerProvider(provider))
		cores = append(cores, &levelFilterCore{
			Core:    &redactingCore{Core: bridge, r: r},
			enabler: level,
		})
	}
	if len(cores) == 0 {
		return nil, errors.New("no log output available: stdout is off and no OTEL provider was given")
	}
	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}
