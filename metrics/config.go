package metrics

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config 指标采集器配置
type Config struct {
	// RetentionWindow 样本保留时长（默认 5 分钟）
	RetentionWindow time.Duration `mapstructure:"retention_window"`

	// MaxSamplesPerRoute 单路由最大样本数（与保留时长先到先淘汰）
	MaxSamplesPerRoute int `mapstructure:"max_samples_per_route"`

	// EvictBatch 每累计多少次写入触发一次惰性淘汰（摊薄淘汰成本）
	EvictBatch int `mapstructure:"evict_batch"`

	// MinSamples 健康检查默认最小样本数门槛
	MinSamples int `mapstructure:"min_samples"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		RetentionWindow:    5 * time.Minute,
		MaxSamplesPerRoute: 10000,
		EvictBatch:         256,
		MinSamples:         10,
	}
}

// ApplyDefaults 零值字段自动填充为默认值
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = def.RetentionWindow
	}
	if c.MaxSamplesPerRoute <= 0 {
		c.MaxSamplesPerRoute = def.MaxSamplesPerRoute
	}
	if c.EvictBatch <= 0 {
		c.EvictBatch = def.EvictBatch
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RetentionWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxSamplesPerRoute, validation.Required, validation.Min(100)),
		validation.Field(&c.EvictBatch, validation.Required, validation.Min(1)),
		validation.Field(&c.MinSamples, validation.Required, validation.Min(1)),
	)
}
