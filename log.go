package personaquiz

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls the application logger
type LogConfig struct {
	Level      string // debug, info, warn, error
	Encoding   string // json or console
	OutputPath string // file path; stderr when empty
}

// NewLogger builds a zap logger from cfg. An invalid level falls back to info.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	name := strings.ToLower(cfg.Level)
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'. Error: %v\n", cfg.Level, err)
		level.SetLevel(zap.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoding := strings.ToLower(cfg.Encoding)
	if encoding != "console" && encoding != "json" {
		encoding = "json"
	}

	output := cfg.OutputPath
	if output == "" {
		// stdout belongs to the interactive quiz
		output = "stderr"
	}

	zapCfg := zap.Config{
		Level:             level,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
