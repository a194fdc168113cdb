package metrics

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-canary/component"
	"github.com/KOMKZ/go-yogan-canary/logger"
)

// ComponentName 组件名称
const ComponentName = "metrics"

// MetricsComponent 指标采集器组件（实现 component.Component）
type MetricsComponent struct {
	collector Collector
	config    Config
}

// NewComponent 创建指标组件
func NewComponent() *MetricsComponent {
	return &MetricsComponent{}
}

// Name 组件名称
func (c *MetricsComponent) Name() string {
	return ComponentName
}

// DependsOn 依赖声明（仅依赖 logger，隐式）
func (c *MetricsComponent) DependsOn() []string {
	return nil
}

// Init 初始化：读取 "metrics" 配置段并创建采集器
func (c *MetricsComponent) Init(ctx context.Context, loader component.ConfigLoader) error {
	cfg := DefaultConfig()
	if loader != nil && loader.IsSet(ComponentName) {
		if err := loader.UnmarshalKey(ComponentName, &cfg); err != nil {
			return fmt.Errorf("load metrics config failed: %w", err)
		}
	}

	collector, err := NewCollector(cfg, WithLogger(logger.GetLogger(ComponentName)))
	if err != nil {
		return err
	}
	c.collector = collector
	c.config = cfg
	return nil
}

// Start 启动（采集器无后台任务，淘汰是写入路径上的惰性批处理）
func (c *MetricsComponent) Start(ctx context.Context) error {
	return nil
}

// Stop 停止（幂等）
func (c *MetricsComponent) Stop(ctx context.Context) error {
	return nil
}

// Collector 获取采集器实例（Init 之后可用）
func (c *MetricsComponent) Collector() Collector {
	return c.collector
}
