package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rover/pkg/types"
)

// Config 日志配置结构
type Config = types.LogConfig

// Logger 封装的结构化日志器
type Logger struct {
	*slog.Logger
	config *Config
	level  *slog.LevelVar
}

// NewLogger 创建新的日志器实例
func NewLogger(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(config.Level))

	writer, err := openWriter(config)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger: slog.New(createHandler(config, writer, level)),
		config: config,
		level:  level,
	}, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "text",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// parseLevel 解析日志级别
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWriter 确定输出目标
func openWriter(config *Config) (io.Writer, error) {
	switch strings.ToLower(config.Output) {
	case "stderr":
		return os.Stderr, nil
	case "discard":
		return io.Discard, nil
	case "file":
		if config.OutputPath == "" {
			config.OutputPath = "logs/rover.log"
		}
		// 确保日志目录存在
		if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
			return nil, err
		}
		return os.OpenFile(config.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	default:
		return os.Stdout, nil
	}
}

// createHandler 创建日志处理器，级别由 LevelVar 控制以便运行时调整
func createHandler(config *Config, writer io.Writer, level *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}
	if config.TimeFormat != "" && config.TimeFormat != time.RFC3339 {
		format := config.TimeFormat
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format(format))
			}
			return a
		}
	}

	if strings.ToLower(config.Format) == "json" {
		return slog.NewJSONHandler(writer, opts)
	}
	return slog.NewTextHandler(writer, opts)
}

// WithContext 返回带有上下文的日志器
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		Logger: slog.New(l.Logger.Handler()),
		config: l.config,
		level:  l.level,
	}
}

// With 返回带有额外字段的日志器
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
		level:  l.level,
	}
}

// WithGroup 返回带有分组的日志器
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		Logger: l.Logger.WithGroup(name),
		config: l.config,
		level:  l.level,
	}
}

// UpdateLevel 动态更新日志级别；派生出的日志器共享同一个级别
func (l *Logger) UpdateLevel(level string) {
	l.config.Level = level
	l.level.Set(parseLevel(level))
}

// Level 返回当前生效的日志级别
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// GetConfig 获取当前配置
func (l *Logger) GetConfig() *Config {
	return l.config
}
