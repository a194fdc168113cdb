package injector

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-canary/component"
	"github.com/KOMKZ/go-yogan-canary/logger"
)

// ComponentName 组件名称
const ComponentName = "injector"

// InjectorComponent 注入器组件（实现 component.Component）
type InjectorComponent struct {
	injector Injector
	config   Config
	decider  TrafficDecider
}

// NewComponent 创建注入器组件
// decider 可为 nil（无金丝雀路由时补丁吃掉全部匹配流量）
func NewComponent(decider TrafficDecider) *InjectorComponent {
	return &InjectorComponent{decider: decider}
}

// Name 组件名称
func (c *InjectorComponent) Name() string {
	return ComponentName
}

// DependsOn 依赖声明
func (c *InjectorComponent) DependsOn() []string {
	return []string{"optional:metrics"}
}

// Init 初始化：读取 "injector" 配置段并创建注入器
func (c *InjectorComponent) Init(ctx context.Context, loader component.ConfigLoader) error {
	cfg := DefaultConfig()
	if loader != nil && loader.IsSet(ComponentName) {
		if err := loader.UnmarshalKey(ComponentName, &cfg); err != nil {
			return fmt.Errorf("load injector config failed: %w", err)
		}
	}

	opts := []Option{WithLogger(logger.GetLogger(ComponentName))}
	if c.decider != nil {
		opts = append(opts, WithTrafficDecider(c.decider))
	}

	inj, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	c.injector = inj
	c.config = cfg
	return nil
}

// Start 启动（无后台任务）
func (c *InjectorComponent) Start(ctx context.Context) error {
	return nil
}

// Stop 停止：停用所有补丁（幂等）
func (c *InjectorComponent) Stop(ctx context.Context) error {
	if c.injector != nil {
		c.injector.EmergencyStopAll()
	}
	return nil
}

// Injector 获取注入器实例（Init 之后可用）
func (c *InjectorComponent) Injector() Injector {
	return c.injector
}
