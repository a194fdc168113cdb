package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ManagerConfig 全局管理器配置（所有模块共享）
type ManagerConfig struct {
	BaseLogDir    string `mapstructure:"base_log_dir"` // 日志根目录（默认 logs/）
	Level         string `mapstructure:"level"`
	AppName       string `mapstructure:"app_name"` // 应用名（自动注入所有日志）
	Encoding      string `mapstructure:"encoding"` // json 或 console
	EnableConsole bool   `mapstructure:"enable_console"`
	EnableFile    bool   `mapstructure:"enable_file"`

	// 文件切割配置（lumberjack）
	MaxSize    int  `mapstructure:"max_size"`    // 单文件最大体积（MB）
	MaxBackups int  `mapstructure:"max_backups"` // 保留旧文件数
	MaxAge     int  `mapstructure:"max_age"`     // 保留天数
	Compress   bool `mapstructure:"compress"`

	EnableCaller bool `mapstructure:"enable_caller"`

	// TraceID 配置
	EnableTraceID    bool   `mapstructure:"enable_trace_id"`
	TraceIDKey       string `mapstructure:"trace_id_key"`        // context 中的键（默认 "trace_id"）
	TraceIDFieldName string `mapstructure:"trace_id_field_name"` // 日志字段名（默认 "trace_id"）
}

// DefaultManagerConfig 返回默认管理器配置
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseLogDir:       "logs",
		Level:            "info",
		Encoding:         "json",
		EnableConsole:    true,
		EnableFile:       false,
		MaxSize:          100,
		MaxBackups:       3,
		MaxAge:           28,
		Compress:         true,
		EnableCaller:     true,
		EnableTraceID:    true,
		TraceIDKey:       "trace_id",
		TraceIDFieldName: "trace_id",
	}
}

// ApplyDefaults 零值字段自动填充为默认值
func (c *ManagerConfig) ApplyDefaults() {
	def := DefaultManagerConfig()
	if c.BaseLogDir == "" {
		c.BaseLogDir = def.BaseLogDir
	}
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Encoding == "" {
		c.Encoding = def.Encoding
	}
	if c.MaxSize <= 0 {
		c.MaxSize = def.MaxSize
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.MaxAge <= 0 {
		c.MaxAge = def.MaxAge
	}
	if c.TraceIDKey == "" {
		c.TraceIDKey = def.TraceIDKey
	}
	if c.TraceIDFieldName == "" {
		c.TraceIDFieldName = def.TraceIDFieldName
	}
}

// parseLevel 解析日志级别字符串
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %q", level)
	}
}
