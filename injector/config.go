package injector

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config 注入器配置
type Config struct {
	// MaxActivePatches 同时活跃的补丁上限
	// 超出时 Attach 返回容量错误（不排队）
	MaxActivePatches int `mapstructure:"max_active_patches"`

	// ScanSource 是否对补丁源码做禁用构造扫描（默认开启）
	ScanSource *bool `mapstructure:"scan_source"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	enabled := true
	return Config{
		MaxActivePatches: 10,
		ScanSource:       &enabled,
	}
}

// ApplyDefaults 零值字段自动填充为默认值
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.MaxActivePatches <= 0 {
		c.MaxActivePatches = def.MaxActivePatches
	}
	if c.ScanSource == nil {
		c.ScanSource = def.ScanSource
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxActivePatches, validation.Required, validation.Min(1), validation.Max(1000)),
	)
}
