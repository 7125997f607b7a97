package logger

import (
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Format string        `json:"format" yaml:"format"`
	Level  zapcore.Level `json:"level" yaml:"level"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Format: "console",
		Level:  zapcore.InfoLevel,
	}
}
