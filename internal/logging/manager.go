package logging

import (
	"context"
	"errors"
	"sync"
)

var (
	// 全局日志管理器实例
	defaultManager *Manager
	once           sync.Once
)

// Manager 日志管理器，所有模块日志器派生自同一个根日志器
type Manager struct {
	mu      sync.RWMutex
	root    *Logger
	loggers map[string]*Logger
}

// NewManager 创建新的日志管理器
func NewManager(config *Config) (*Manager, error) {
	root, err := NewLogger(config)
	if err != nil {
		return nil, err
	}
	return &Manager{
		root:    root,
		loggers: map[string]*Logger{"default": root},
	}, nil
}

// GetManager 获取全局日志管理器实例
func GetManager() *Manager {
	once.Do(func() {
		defaultManager, _ = NewManager(DefaultConfig())
	})
	return defaultManager
}

// Configure 用新配置替换全局根日志器；已分发的模块日志器会被重建
func Configure(config *Config) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}
	return GetManager().UpdateConfig(config)
}

// GetLogger 获取指定名称的日志器
func (m *Manager) GetLogger(name string) *Logger {
	m.mu.RLock()
	logger, exists := m.loggers[name]
	m.mu.RUnlock()
	if exists {
		return logger
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 再次检查，防止并发创建
	if logger, exists := m.loggers[name]; exists {
		return logger
	}

	// 为不同的模块添加前缀
	logger = m.root.With("module", name)
	m.loggers[name] = logger
	return logger
}

// UpdateConfig 更新根日志器；模块日志器在原地替换 handler，已持有的指针继续有效
func (m *Manager) UpdateConfig(config *Config) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	root, err := NewLogger(config)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.root.Logger = root.Logger
	m.root.config = root.config
	m.root.level = root.level
	for name, logger := range m.loggers {
		if name == "default" {
			continue
		}
		fresh := root.With("module", name)
		logger.Logger = fresh.Logger
		logger.config = fresh.config
		logger.level = fresh.level
	}
	return nil
}

// SetLevel 调整所有日志器的级别
func (m *Manager) SetLevel(level string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.root.UpdateLevel(level)
}

// GetLoggerNames 获取所有日志器名称
func (m *Manager) GetLoggerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	return names
}

// 便捷函数：使用默认日志管理器获取日志器
func GetLogger(name string) *Logger {
	return GetManager().GetLogger(name)
}

// 便捷函数：调整全局日志级别
func SetLevel(level string) {
	GetManager().SetLevel(level)
}

// 便捷函数：获取默认日志器
func Default() *Logger {
	return GetLogger("default")
}

// 便捷函数：使用上下文记录日志
func WithContext(ctx context.Context) *Logger {
	return Default().WithContext(ctx)
}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
