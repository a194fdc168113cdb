package canary

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-canary/component"
	"github.com/KOMKZ/go-yogan-canary/injector"
	"github.com/KOMKZ/go-yogan-canary/logger"
	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/rollback"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

// ComponentName 组件名称
const ComponentName = "canary"

// CanaryComponent 部署器组件（实现 component.Component）
type CanaryComponent struct {
	metricsComp  *metrics.MetricsComponent
	injectorComp *injector.InjectorComponent
	router       *Router
	sched        scheduler.Scheduler
	history      rollback.History
	opts         []DeployerOption

	deployer *Deployer
	config   Config
}

// NewComponent 创建部署器组件
// router 同时应作为注入器组件的 TrafficDecider，由装配方保证；
// history 为 nil 时使用内存历史存储
func NewComponent(metricsComp *metrics.MetricsComponent, injectorComp *injector.InjectorComponent,
	router *Router, sched scheduler.Scheduler, history rollback.History,
	opts ...DeployerOption) *CanaryComponent {
	return &CanaryComponent{
		metricsComp:  metricsComp,
		injectorComp: injectorComp,
		router:       router,
		sched:        sched,
		history:      history,
		opts:         opts,
	}
}

// Name 组件名称
func (c *CanaryComponent) Name() string {
	return ComponentName
}

// DependsOn 依赖声明
func (c *CanaryComponent) DependsOn() []string {
	return []string{metrics.ComponentName, injector.ComponentName}
}

// Init 初始化：读取 "canary" 配置段并创建部署器
func (c *CanaryComponent) Init(ctx context.Context, loader component.ConfigLoader) error {
	cfg := DefaultConfig()
	if loader != nil && loader.IsSet(ComponentName) {
		if err := loader.UnmarshalKey(ComponentName, &cfg); err != nil {
			return fmt.Errorf("load canary config failed: %w", err)
		}
	}

	if c.history == nil {
		c.history = rollback.NewMemoryHistory(256)
	}

	opts := append([]DeployerOption{WithDeployerLogger(logger.GetLogger(ComponentName))}, c.opts...)
	dep, err := NewDeployer(cfg,
		c.metricsComp.Collector(),
		c.injectorComp.Injector(),
		c.router, c.sched, c.history,
		opts...)
	if err != nil {
		return err
	}
	c.deployer = dep
	c.config = cfg
	return nil
}

// Start 启动常驻熔断器
func (c *CanaryComponent) Start(ctx context.Context) error {
	return c.deployer.Start()
}

// Stop 停止：关闭部署器并释放历史存储（幂等）
func (c *CanaryComponent) Stop(ctx context.Context) error {
	if c.deployer != nil {
		if err := c.deployer.Close(); err != nil {
			return err
		}
	}
	if c.history != nil {
		return c.history.Close()
	}
	return nil
}

// Deployer 获取部署器实例（Init 之后可用）
func (c *CanaryComponent) Deployer() *Deployer {
	return c.deployer
}
