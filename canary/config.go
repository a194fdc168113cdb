package canary

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/KOMKZ/go-yogan-canary/rollback"
)

// Config 部署器配置
type Config struct {
	// MaxConcurrentDeployments 并发部署上限（默认 5）
	MaxConcurrentDeployments int `mapstructure:"max_concurrent_deployments"`

	// StageTimeoutBuffer 阶段安全时限缓冲：阶段在 Duration 到期后
	// 若因样本不足无法下结论，最多再等待此时长，超时按失败回滚（默认 30s）
	StageTimeoutBuffer time.Duration `mapstructure:"stage_timeout_buffer"`

	// EventBufferSize 事件总线缓冲区大小（默认 64）
	EventBufferSize int `mapstructure:"event_buffer_size"`

	// EventLogSize 每个部署保留的事件条数上限（默认 100）
	EventLogSize int `mapstructure:"event_log_size"`

	// PoolSize 后台任务池大小，承载审计写入等尽力而为的旁路工作（默认 8）
	PoolSize int `mapstructure:"pool_size"`

	// Monitor 每个部署的独立回滚监控配置（Triggers 由计划阈值生成）
	Monitor rollback.MonitorConfig `mapstructure:"monitor"`

	// Breaker 常驻熔断器配置
	Breaker rollback.BreakerConfig `mapstructure:"breaker"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	cfg := Config{
		MaxConcurrentDeployments: 5,
		StageTimeoutBuffer:       30 * time.Second,
		EventBufferSize:          64,
		EventLogSize:             100,
		PoolSize:                 8,
		Breaker:                  rollback.DefaultBreakerConfig(),
	}
	cfg.Monitor.ApplyDefaults()
	return cfg
}

// ApplyDefaults 零值字段自动填充为默认值
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.MaxConcurrentDeployments <= 0 {
		c.MaxConcurrentDeployments = def.MaxConcurrentDeployments
	}
	if c.StageTimeoutBuffer <= 0 {
		c.StageTimeoutBuffer = def.StageTimeoutBuffer
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = def.EventBufferSize
	}
	if c.EventLogSize <= 0 {
		c.EventLogSize = def.EventLogSize
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	c.Monitor.ApplyDefaults()
	c.Breaker.ApplyDefaults()
}

// Validate 校验配置
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxConcurrentDeployments, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EventLogSize, validation.Required, validation.Min(1)),
		validation.Field(&c.PoolSize, validation.Required, validation.Min(1)),
	)
}
