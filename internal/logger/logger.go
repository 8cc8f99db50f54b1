package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents logging configuration
type Config struct {
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	Level      string `mapstructure:"level"` // debug, info, warn, error
	Format     string `mapstructure:"format"` // console, json
}

// DefaultConfig returns a console logger at info level.
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "console", MaxSize: 100, MaxBackups: 3, MaxAge: 28}
}

// SetDefaults fills zero values.
func (cfg *Config) SetDefaults() *Config {
	out := *cfg
	if out.Level == "" {
		out.Level = "info"
	}
	if out.Format == "" {
		out.Format = "console"
	}
	if out.MaxSize == 0 {
		out.MaxSize = 100
	}
	return &out
}

// Validate validates logging configuration
func (cfg *Config) Validate() error {
	if cfg.MaxSize <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	switch cfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return nil
}

// New creates a logger writing to w and, when configured, a rotating file.
// Logs go to stderr so they never mix with command output on stdout.
func New(cfg *Config, w io.Writer) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}
	if w == nil {
		w = os.Stderr
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	level := getZapLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}

	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), level))

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

func getZapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
