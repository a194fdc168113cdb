package rollback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-canary/logger"
	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

// SnapshotFunc 提供被监控路由的当前指标快照
type SnapshotFunc func() metrics.Snapshot

// RollbackFunc 发起回滚（由部署器提供，执行侧保证幂等）
type RollbackFunc func(ctx context.Context, source TriggerSource, reason string) error

// MonitorConfig 监控循环配置
type MonitorConfig struct {
	// Interval 轮询间隔（默认 5s，可短于部署器自身的阶段轮询）
	Interval time.Duration `mapstructure:"interval"`

	// Window 每次轮询的快照窗口（默认 60s）
	Window time.Duration `mapstructure:"window"`

	// MinSamples 最小样本数门槛（低于此值跳过判断）
	MinSamples int `mapstructure:"min_samples"`

	// Triggers 触发器列表
	Triggers []Trigger `mapstructure:"triggers"`
}

// ApplyDefaults 零值字段自动填充为默认值
func (c *MonitorConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
}

// Monitor 单部署的独立回滚监控循环
//
// 与部署器的阶段监督并发运行，两者都可能对同一部署发起回滚；
// 触发一次后监控循环自行停止（回滚幂等性由执行侧保证）
type Monitor struct {
	name       string
	config     MonitorConfig
	snapshotFn SnapshotFunc
	rollbackFn RollbackFunc
	sched      scheduler.Scheduler
	clock      clockwork.Clock
	logger     *logger.CtxZapLogger

	eval  *evaluator
	evalMu sync.Mutex

	task    scheduler.Task
	started atomic.Bool
	fired   atomic.Bool
}

// MonitorOption 监控器选项
type MonitorOption func(*Monitor)

// WithMonitorClock 注入时钟（测试用）
func WithMonitorClock(clock clockwork.Clock) MonitorOption {
	return func(m *Monitor) { m.clock = clock }
}

// WithMonitorLogger 注入 Logger
func WithMonitorLogger(l *logger.CtxZapLogger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor 创建监控器
// name 用于调度任务命名与日志（通常为部署 ID）
func NewMonitor(name string, cfg MonitorConfig, sched scheduler.Scheduler,
	snapshotFn SnapshotFunc, rollbackFn RollbackFunc, opts ...MonitorOption) *Monitor {

	cfg.ApplyDefaults()
	m := &Monitor{
		name:       name,
		config:     cfg,
		snapshotFn: snapshotFn,
		rollbackFn: rollbackFn,
		sched:      sched,
		clock:      clockwork.NewRealClock(),
		logger:     logger.GetLogger("rollback"),
		eval:       newEvaluator(cfg.Triggers, cfg.MinSamples),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 启动监控循环（幂等）
func (m *Monitor) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}
	task, err := m.sched.Every(m.config.Interval, fmt.Sprintf("rollback-monitor-%s", m.name), m.poll)
	if err != nil {
		m.started.Store(false)
		return fmt.Errorf("start rollback monitor failed: %w", err)
	}
	m.task = task
	return nil
}

// Stop 停止监控循环（幂等）
func (m *Monitor) Stop() {
	if m.task != nil {
		m.task.Cancel()
	}
}

// Fired 是否已触发过回滚
func (m *Monitor) Fired() bool {
	return m.fired.Load()
}

// poll 单次轮询：取快照、评估、必要时发起回滚
func (m *Monitor) poll(ctx context.Context) {
	if m.fired.Load() {
		return
	}

	snap := m.snapshotFn()

	m.evalMu.Lock()
	decision := m.eval.observe(snap, m.clock.Now())
	m.evalMu.Unlock()

	if !decision.ShouldRollback {
		return
	}
	if !m.fired.CompareAndSwap(false, true) {
		return
	}

	m.Stop()
	m.logger.WarnCtx(ctx, "rollback trigger fired",
		zap.String("monitor", m.name),
		zap.Bool("critical", decision.Critical),
		zap.String("reason", decision.Reason))

	// 回滚失败只记录：执行侧负责把部署标记为失败，监控不重试
	if err := m.rollbackFn(ctx, SourceAutomatic, decision.Reason); err != nil {
		m.logger.ErrorCtx(ctx, "rollback execution failed",
			zap.String("monitor", m.name), zap.Error(err))
	}
}
