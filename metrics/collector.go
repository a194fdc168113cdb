package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-canary/logger"
)

// Collector 指标采集器核心接口
type Collector interface {
	// StartCollection 开始采集指定路由（幂等，已开始则无操作）
	StartCollection(route string)

	// StopCollection 停止采集并释放该路由的样本缓冲
	StopCollection(route string)

	// IsCollecting 该路由是否正在采集
	IsCollecting(route string) bool

	// RecordSample 记录一次请求观测（热路径，未采集的路由直接丢弃）
	RecordSample(route string, s Sample)

	// GetSnapshot 计算指定窗口的滚动快照
	// 零样本返回哨兵快照（全 0），不报错
	GetSnapshot(route string, window time.Duration) Snapshot

	// SetBaseline 设置基线快照（部署生命周期内保留）
	SetBaseline(route string, s Snapshot)

	// GetBaseline 获取基线快照，第二返回值表示是否存在
	GetBaseline(route string) (Snapshot, bool)

	// CompareToBaseline 当前快照与基线的差值，基线不存在时第二返回值为 false
	CompareToBaseline(route string, current Snapshot) (BaselineDelta, bool)

	// CheckHealth 按阈值评估路由健康状况
	// 样本数低于 MinSamples 时直接判定健康（统计不可靠，不做比率判断）
	CheckHealth(route string, window time.Duration, th HealthThresholds) HealthReport

	// Routes 当前正在采集的路由列表（排序后返回）
	Routes() []string
}

// collector Collector 实现
type collector struct {
	config Config
	clock  clockwork.Clock
	logger *logger.CtxZapLogger

	routes map[string]*routeSeries
	mu     sync.RWMutex
}

// routeSeries 单路由样本序列
type routeSeries struct {
	samples    []Sample
	baseline   *Snapshot
	writeCount int // 自上次淘汰以来的写入次数
	mu         sync.Mutex
}

// CollectorOption 采集器选项
type CollectorOption func(*collector)

// WithClock 注入时钟（测试用）
func WithClock(clock clockwork.Clock) CollectorOption {
	return func(c *collector) {
		c.clock = clock
	}
}

// WithLogger 注入 Logger
func WithLogger(l *logger.CtxZapLogger) CollectorOption {
	return func(c *collector) {
		c.logger = l
	}
}

// NewCollector 创建指标采集器
func NewCollector(cfg Config, opts ...CollectorOption) (Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	c := &collector{
		config: cfg,
		clock:  clockwork.NewRealClock(),
		logger: logger.GetLogger("metrics"),
		routes: make(map[string]*routeSeries),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StartCollection 开始采集（幂等）
func (c *collector) StartCollection(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.routes[route]; ok {
		return
	}
	c.routes[route] = &routeSeries{
		samples: make([]Sample, 0, 256),
	}
	c.logger.Debug("metrics collection started", zap.String("route", route))
}

// StopCollection 停止采集并释放缓冲
func (c *collector) StopCollection(route string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.routes[route]; !ok {
		return
	}
	delete(c.routes, route)
	c.logger.Debug("metrics collection stopped", zap.String("route", route))
}

// IsCollecting 该路由是否正在采集
func (c *collector) IsCollecting(route string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.routes[route]
	return ok
}

// RecordSample 记录样本（热路径：短临界区 + 批量惰性淘汰）
func (c *collector) RecordSample(route string, s Sample) {
	c.mu.RLock()
	series, ok := c.routes[route]
	c.mu.RUnlock()
	if !ok {
		// 未监控的路由，直接丢弃
		return
	}

	if s.Timestamp.IsZero() {
		s.Timestamp = c.clock.Now()
	}
	s.Route = route

	series.mu.Lock()
	series.samples = append(series.samples, s)
	series.writeCount++
	if series.writeCount >= c.config.EvictBatch {
		c.evictLocked(series)
		series.writeCount = 0
	}
	series.mu.Unlock()
}

// evictLocked 淘汰过期与超量样本（调用方持有 series.mu）
func (c *collector) evictLocked(series *routeSeries) {
	cutoff := c.clock.Now().Add(-c.config.RetentionWindow)

	// 过期裁剪逐个过滤，不假定追加顺序等于时间顺序
	kept := series.samples[:0]
	for _, s := range series.samples {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	series.samples = kept

	// 数量上限裁剪（保留最新的）
	if over := len(series.samples) - c.config.MaxSamplesPerRoute; over > 0 {
		series.samples = append(series.samples[:0:0], series.samples[over:]...)
	}
}

// GetSnapshot 计算窗口快照
func (c *collector) GetSnapshot(route string, window time.Duration) Snapshot {
	now := c.clock.Now()
	empty := Snapshot{
		Route:       route,
		WindowStart: now.Add(-window),
		CapturedAt:  now,
	}

	c.mu.RLock()
	series, ok := c.routes[route]
	c.mu.RUnlock()
	if !ok {
		return empty
	}

	windowStart := now.Add(-window)
	var (
		successes int
		errors    int
		latencySum float64
	)

	series.mu.Lock()
	// 调用方可自带时间戳，追加顺序不保证时间有序，逐个判断不提前终止
	for i := len(series.samples) - 1; i >= 0; i-- {
		s := series.samples[i]
		if s.Timestamp.Before(windowStart) {
			continue
		}
		if s.Status == StatusSuccess {
			successes++
		} else {
			errors++
		}
		latencySum += s.LatencyMs
	}
	series.mu.Unlock()

	total := successes + errors
	if total == 0 {
		return empty
	}

	snap := Snapshot{
		Route:       route,
		SampleSize:  total,
		WindowStart: windowStart,
		CapturedAt:  now,
	}
	snap.SuccessRate = float64(successes) / float64(total)
	snap.ErrorRate = float64(errors) / float64(total)
	snap.AvgLatencyMs = latencySum / float64(total)
	if secs := window.Seconds(); secs > 0 {
		snap.ThroughputPerSec = float64(total) / secs
	}
	return snap
}

// SetBaseline 设置基线快照
func (c *collector) SetBaseline(route string, s Snapshot) {
	c.mu.RLock()
	series, ok := c.routes[route]
	c.mu.RUnlock()
	if !ok {
		return
	}
	series.mu.Lock()
	cp := s
	series.baseline = &cp
	series.mu.Unlock()
}

// GetBaseline 获取基线快照
func (c *collector) GetBaseline(route string) (Snapshot, bool) {
	c.mu.RLock()
	series, ok := c.routes[route]
	c.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	series.mu.Lock()
	defer series.mu.Unlock()
	if series.baseline == nil {
		return Snapshot{}, false
	}
	return *series.baseline, true
}

// CompareToBaseline 计算当前快照相对基线的差值
func (c *collector) CompareToBaseline(route string, current Snapshot) (BaselineDelta, bool) {
	baseline, ok := c.GetBaseline(route)
	if !ok {
		return BaselineDelta{}, false
	}

	delta := BaselineDelta{
		DeltaSuccessRate: current.SuccessRate - baseline.SuccessRate,
		DeltaErrorRate:   current.ErrorRate - baseline.ErrorRate,
	}
	if baseline.AvgLatencyMs > 0 {
		delta.LatencyRatio = current.AvgLatencyMs / baseline.AvgLatencyMs
	}
	if baseline.ThroughputPerSec > 0 {
		delta.ThroughputRatio = current.ThroughputPerSec / baseline.ThroughputPerSec
	}
	return delta, true
}

// CheckHealth 按阈值评估健康状况
func (c *collector) CheckHealth(route string, window time.Duration, th HealthThresholds) HealthReport {
	snap := c.GetSnapshot(route, window)

	minSamples := th.MinSamples
	if minSamples <= 0 {
		minSamples = c.config.MinSamples
	}

	// 最小样本门槛：样本不足时不做比率判断，避免小流量路由误判回滚
	if snap.SampleSize < minSamples {
		return HealthReport{Healthy: true, Snapshot: snap}
	}

	var issues []string
	if th.MinSuccessRate > 0 && snap.SuccessRate < th.MinSuccessRate {
		issues = append(issues, fmt.Sprintf(
			"success rate %.4f below threshold %.4f", snap.SuccessRate, th.MinSuccessRate))
	}
	if th.MaxErrorRate > 0 && snap.ErrorRate > th.MaxErrorRate {
		issues = append(issues, fmt.Sprintf(
			"error rate %.4f above threshold %.4f", snap.ErrorRate, th.MaxErrorRate))
	}
	if th.MaxAvgLatencyMs > 0 && snap.AvgLatencyMs > th.MaxAvgLatencyMs {
		issues = append(issues, fmt.Sprintf(
			"avg latency %.1fms above threshold %.1fms", snap.AvgLatencyMs, th.MaxAvgLatencyMs))
	}

	return HealthReport{
		Healthy:  len(issues) == 0,
		Issues:   issues,
		Snapshot: snap,
	}
}

// Routes 当前采集中的路由（排序）
func (c *collector) Routes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	routes := make([]string, 0, len(c.routes))
	for r := range c.routes {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}
