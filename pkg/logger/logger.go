// Package logger 提供基于 zap 的结构化日志
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	log   *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	mu    sync.RWMutex
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" env:"ARENA_LOG_LEVEL"`             // debug, info, warn, error
	Format     string `yaml:"format" env:"ARENA_LOG_FORMAT"`           // json, console
	Output     string `yaml:"output" env:"ARENA_LOG_OUTPUT"`           // stdout, file, both
	FilePath   string `yaml:"file_path" env:"ARENA_LOG_FILE_PATH"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" env:"ARENA_LOG_MAX_SIZE"`       // MB
	MaxBackups int    `yaml:"max_backups" env:"ARENA_LOG_MAX_BACKUPS"` // 保留文件数
	MaxAge     int    `yaml:"max_age" env:"ARENA_LOG_MAX_AGE"`         // days
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// Init 初始化日志，可重复调用，后一次覆盖前一次
func Init(cfg *Config) {
	l := New(cfg)
	mu.Lock()
	old := log
	log = l
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
}

// New 创建日志实例，级别与全局级别共享
func New(cfg *Config) *zap.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	SetLevelFromString(cfg.Level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level))
	}
	if (cfg.Output == "file" || cfg.Output == "both") && cfg.FilePath != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}
	if len(cores) == 0 {
		return zap.NewNop()
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// SetLevelFromString 从字符串设置日志级别
func SetLevelFromString(s string) {
	switch strings.ToLower(s) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// EnableDebug 启用调试日志
func EnableDebug() {
	level.SetLevel(zapcore.DebugLevel)
}

// Quiet 只输出错误日志
func Quiet() {
	level.SetLevel(zapcore.ErrorLevel)
}

// L 获取日志实例
func L() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(nil)
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Named 获取带名称的子日志
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Or 返回 l，为 nil 时返回全局日志
func Or(l *zap.Logger, name string) *zap.Logger {
	if l != nil {
		return l
	}
	return Named(name)
}

// Sync 同步日志
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
