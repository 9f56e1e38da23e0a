// Package logger builds the zap logger used by voicectl. Console output goes
// to stderr because the CLI streams raw audio bytes on stdout; file output is
// JSON and rotates through lumberjack.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and sinks.
type Config struct {
	Level   string     `mapstructure:"level" yaml:"level"`
	Console bool       `mapstructure:"console" yaml:"console"`
	File    FileConfig `mapstructure:"file" yaml:"file"`
}

// FileConfig controls the rotating file sink.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	Name       string `mapstructure:"name" yaml:"name"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// New builds a logger from cfg. With no sink enabled it falls back to a
// console core on stderr so diagnostics are never silently dropped.
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, consoleCore(level))
	}
	if cfg.File.Enabled {
		fileWriter, err := newFileWriter(cfg.File)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(fileWriter), level))
	}
	if len(cores) == 0 {
		cores = append(cores, consoleCore(level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func consoleCore(level zapcore.Level) zapcore.Core {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = timeEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), level)
}

func jsonEncoder() zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = timeEncoder
	return zapcore.NewJSONEncoder(encoderCfg)
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

func newFileWriter(fileCfg FileConfig) (*lumberjack.Logger, error) {
	dir := strings.TrimSpace(fileCfg.Path)
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	filename := strings.TrimSpace(fileCfg.Name)
	if filename == "" {
		filename = "voicectl.log"
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, filename),
		MaxSize:    fileCfg.MaxSizeMB,
		MaxBackups: fileCfg.MaxBackups,
		MaxAge:     fileCfg.MaxAgeDays,
		Compress:   fileCfg.Compress,
		LocalTime:  true,
	}
	if writer.MaxSize <= 0 {
		writer.MaxSize = 100
	}
	if writer.MaxBackups < 0 {
		writer.MaxBackups = 0
	}
	if writer.MaxAge < 0 {
		writer.MaxAge = 0
	}
	return writer, nil
}

func parseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "info", "":
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}
