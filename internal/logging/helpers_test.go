package logging

import "github.com/fyrsmithlabs/ragd/internal/config"

func configLogging(level, format string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: format, Sampling: true, Caller: true}
}
