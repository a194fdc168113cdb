package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager Logger 管理器（管理多个模块 Logger 实例）
type Manager struct {
	baseConfig ManagerConfig
	loggers    map[string]*CtxZapLogger        // 模块名 -> CtxZapLogger 实例
	writers    map[string][]*lumberjack.Logger // 模块名 -> 文件写入器（用于关闭）
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager 创建独立的 Manager 实例
// cfg 中的零值字段会自动填充为默认值
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		baseConfig: cfg,
		loggers:    make(map[string]*CtxZapLogger),
		writers:    make(map[string][]*lumberjack.Logger),
	}
}

// InitManager 初始化全局 Logger 管理器（只调用一次）
func InitManager(cfg ManagerConfig) {
	managerOnce.Do(func() {
		globalManager = NewManager(cfg)
	})
}

// GetLogger 获取模块 Logger（全局管理器未初始化时自动创建默认配置）
func GetLogger(module string) *CtxZapLogger {
	managerOnce.Do(func() {
		globalManager = NewManager(DefaultManagerConfig())
	})
	return globalManager.GetLogger(module)
}

// GetLogger 获取或创建模块 Logger（实例方法，并发安全）
func (m *Manager) GetLogger(module string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[module]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	// 双检：可能已被其他协程创建
	if l, ok := m.loggers[module]; ok {
		return l
	}

	l := m.buildLogger(module)
	m.loggers[module] = l
	return l
}

// Close 关闭所有文件写入器（幂等）
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, ws := range m.writers {
		for _, w := range ws {
			if err := w.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	m.writers = make(map[string][]*lumberjack.Logger)
	return firstErr
}

// buildLogger 构建模块 Logger（调用方持有写锁）
func (m *Manager) buildLogger(module string) *CtxZapLogger {
	level, err := parseLevel(m.baseConfig.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if m.baseConfig.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var cores []zapcore.Core
	if m.baseConfig.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}
	if m.baseConfig.EnableFile {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(m.baseConfig.BaseLogDir, module+".log"),
			MaxSize:    m.baseConfig.MaxSize,
			MaxBackups: m.baseConfig.MaxBackups,
			MaxAge:     m.baseConfig.MaxAge,
			Compress:   m.baseConfig.Compress,
		}
		m.writers[module] = append(m.writers[module], w)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), level))
	}
	if len(cores) == 0 {
		// 控制台和文件都关闭时退化为 no-op，而不是报错
		return NewNop()
	}

	opts := []zap.Option{}
	if m.baseConfig.EnableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	base := zap.New(zapcore.NewTee(cores...), opts...).With(zap.String("module", module))
	return &CtxZapLogger{
		base:   base,
		module: module,
		config: &m.baseConfig,
	}
}
