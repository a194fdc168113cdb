package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-canary/logger"
	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	// BreakerClosed 正常（未熔断）
	BreakerClosed BreakerState = iota

	// BreakerOpen 已熔断（冷却期内不再重复触发）
	BreakerOpen
)

// String returns the state name
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "Closed"
	case BreakerOpen:
		return "Open"
	default:
		return "Unknown"
	}
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// Enabled 是否启用（未启用时 Start 为无操作）
	Enabled bool `mapstructure:"enabled"`

	// ErrorRateThreshold 路由级错误率阈值（默认 0.5）
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold"`

	// MinSamples 最小样本数（避免小流量误判，默认 20）
	MinSamples int `mapstructure:"min_samples"`

	// Interval 轮询间隔（默认 5s）
	Interval time.Duration `mapstructure:"interval"`

	// Window 快照窗口（默认 30s）
	Window time.Duration `mapstructure:"window"`

	// Cooldown 熔断后的冷却期，期内同一路由不重复触发（默认 60s）
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// DefaultBreakerConfig 返回默认配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:            true,
		ErrorRateThreshold: 0.5,
		MinSamples:         20,
		Interval:           5 * time.Second,
		Window:             30 * time.Second,
		Cooldown:           time.Minute,
	}
}

// ApplyDefaults 零值字段自动填充为默认值
func (c *BreakerConfig) ApplyDefaults() {
	def := DefaultBreakerConfig()
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = def.ErrorRateThreshold
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
}

// RoutesFunc 提供当前需要守护的路由列表
type RoutesFunc func() []string

// RouteSnapshotFunc 提供指定路由的指标快照
type RouteSnapshotFunc func(route string, window time.Duration) metrics.Snapshot

// EmergencyFunc 熔断动作：回滚全部活跃部署并紧急停用注入器（由部署器提供），
// route 为触发击穿的路由
type EmergencyFunc func(ctx context.Context, route string, reason string)

// CircuitBreaker 常驻熔断器（独立于任何单个部署的监控）
//
// 这是系统的最后防线：即使单部署监控已失败或被停止，
// 熔断器仍按固定间隔检查所有被采集路由的聚合健康状况
type CircuitBreaker struct {
	config      BreakerConfig
	routesFn    RoutesFunc
	snapshotFn  RouteSnapshotFunc
	emergencyFn EmergencyFunc
	sched       scheduler.Scheduler
	clock       clockwork.Clock
	logger      *logger.CtxZapLogger

	mu      sync.Mutex
	tripped map[string]time.Time // 路由 -> 熔断时间
	task    scheduler.Task
	started bool
}

// BreakerOption 熔断器选项
type BreakerOption func(*CircuitBreaker)

// WithBreakerClock 注入时钟（测试用）
func WithBreakerClock(clock clockwork.Clock) BreakerOption {
	return func(b *CircuitBreaker) { b.clock = clock }
}

// WithBreakerLogger 注入 Logger
func WithBreakerLogger(l *logger.CtxZapLogger) BreakerOption {
	return func(b *CircuitBreaker) { b.logger = l }
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(cfg BreakerConfig, sched scheduler.Scheduler,
	routesFn RoutesFunc, snapshotFn RouteSnapshotFunc, emergencyFn EmergencyFunc,
	opts ...BreakerOption) *CircuitBreaker {

	cfg.ApplyDefaults()
	b := &CircuitBreaker{
		config:      cfg,
		routesFn:    routesFn,
		snapshotFn:  snapshotFn,
		emergencyFn: emergencyFn,
		sched:       sched,
		clock:       clockwork.NewRealClock(),
		logger:      logger.GetLogger("rollback"),
		tripped:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start 启动熔断器轮询（幂等，未启用时无操作）
func (b *CircuitBreaker) Start() error {
	if !b.config.Enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	task, err := b.sched.Every(b.config.Interval, "circuit-breaker", b.poll)
	if err != nil {
		return err
	}
	b.task = task
	b.started = true
	return nil
}

// Stop 停止轮询（幂等）
func (b *CircuitBreaker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task != nil {
		b.task.Cancel()
		b.task = nil
	}
	b.started = false
}

// State 路由的熔断状态
func (b *CircuitBreaker) State(route string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	at, ok := b.tripped[route]
	if !ok {
		return BreakerClosed
	}
	if b.clock.Now().Sub(at) >= b.config.Cooldown {
		delete(b.tripped, route)
		return BreakerClosed
	}
	return BreakerOpen
}

// poll 单次轮询：检查所有守护路由
func (b *CircuitBreaker) poll(ctx context.Context) {
	for _, route := range b.routesFn() {
		if b.State(route) == BreakerOpen {
			continue
		}

		snap := b.snapshotFn(route, b.config.Window)
		if snap.SampleSize < b.config.MinSamples {
			continue
		}
		if snap.ErrorRate <= b.config.ErrorRateThreshold {
			continue
		}

		b.mu.Lock()
		b.tripped[route] = b.clock.Now()
		b.mu.Unlock()

		reason := fmt.Sprintf("circuit breaker: route error rate %.4f exceeds %.4f",
			snap.ErrorRate, b.config.ErrorRateThreshold)
		b.logger.ErrorCtx(ctx, "circuit breaker tripped",
			zap.String("route", route),
			zap.Float64("error_rate", snap.ErrorRate),
			zap.Int("sample_size", snap.SampleSize))

		// 熔断动作失败也不能让轮询挂掉
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.ErrorCtx(ctx, "emergency handler panicked", zap.Any("panic", r))
				}
			}()
			b.emergencyFn(ctx, route, reason)
		}()
	}
}
