// Package config 提供多数据源的配置加载器
//
// 数据源按加入顺序合并，后加入的覆盖先加入的；环境变量优先级最高。
// 加载完成后通过 UnmarshalKey 把配置段解析到各组件的 Config 结构
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader 配置加载器（实现 component.ConfigLoader）
type Loader struct {
	v         *viper.Viper
	files     []string
	envPrefix string
	loaded    []string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// AddFile 加入一个配置文件数据源（YAML/JSON/TOML，按扩展名识别）
func (l *Loader) AddFile(path string) *Loader {
	l.files = append(l.files, path)
	return l
}

// WithEnvPrefix 启用环境变量覆盖
// 键映射规则：canary.max_concurrent_deployments → <PREFIX>_CANARY_MAX_CONCURRENT_DEPLOYMENTS
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 加载并合并所有数据源
func (l *Loader) Load() error {
	for _, path := range l.files {
		sub := viper.New()
		sub.SetConfigFile(path)
		if err := sub.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s failed: %w", path, err)
		}
		if err := l.v.MergeConfigMap(sub.AllSettings()); err != nil {
			return fmt.Errorf("merge config file %s failed: %w", path, err)
		}
		l.loaded = append(l.loaded, path)
	}

	if l.envPrefix != "" {
		l.v.SetEnvPrefix(l.envPrefix)
		l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		l.v.AutomaticEnv()
	}
	return nil
}

// UnmarshalKey 把配置段解析到结构体（时长字符串自动转 time.Duration）
func (l *Loader) UnmarshalKey(key string, out interface{}) error {
	return l.v.UnmarshalKey(key, out)
}

// Unmarshal 把全部配置解析到结构体
func (l *Loader) Unmarshal(out interface{}) error {
	return l.v.Unmarshal(out)
}

// IsSet 配置项是否存在
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// GetString 读取字符串配置
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// GetInt 读取整数配置
func (l *Loader) GetInt(key string) int {
	return l.v.GetInt(key)
}

// GetBool 读取布尔配置
func (l *Loader) GetBool(key string) bool {
	return l.v.GetBool(key)
}

// LoadedFiles 已加载的配置文件列表（日志用）
func (l *Loader) LoadedFiles() []string {
	return l.loaded
}
