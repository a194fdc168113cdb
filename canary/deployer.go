package canary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KOMKZ/go-yogan-canary/injector"
	"github.com/KOMKZ/go-yogan-canary/logger"
	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/rollback"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

// historyWriteTimeout 审计记录写入的超时
const historyWriteTimeout = 5 * time.Second

// Deployer 金丝雀部署器
//
// Deploy 立即返回，阶段推进由调度器驱动的监督轮询完成；
// 回滚执行幂等，阶段监督、独立监控、熔断器、手动取消竞争时只有一个生效
type Deployer struct {
	config    Config
	collector metrics.Collector
	injector  injector.Injector
	router    *Router
	sched     scheduler.Scheduler
	history   rollback.History
	bus       *EventBus
	breaker   *rollback.CircuitBreaker
	pool      *ants.Pool
	clock     clockwork.Clock
	logger    *logger.CtxZapLogger
	otel      *OTelCanaryMetrics

	mu          sync.RWMutex
	deployments map[string]*deployment

	closed atomic.Bool
}

// DeployerOption 部署器选项
type DeployerOption func(*Deployer)

// WithDeployerClock 注入时钟（测试用）
func WithDeployerClock(clock clockwork.Clock) DeployerOption {
	return func(e *Deployer) { e.clock = clock }
}

// WithDeployerLogger 注入 Logger
func WithDeployerLogger(l *logger.CtxZapLogger) DeployerOption {
	return func(e *Deployer) { e.logger = l }
}

// WithOTelMetrics 注入 OTel 指标提供者（nil 安全）
func WithOTelMetrics(m *OTelCanaryMetrics) DeployerOption {
	return func(e *Deployer) { e.otel = m }
}

// NewDeployer 创建部署器
func NewDeployer(cfg Config, coll metrics.Collector, inj injector.Injector,
	router *Router, sched scheduler.Scheduler, history rollback.History,
	opts ...DeployerOption) (*Deployer, error) {

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, ErrValidation.WithCause(err)
	}

	pool, err := ants.NewPool(cfg.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create deployer pool failed: %w", err)
	}

	e := &Deployer{
		config:      cfg,
		collector:   coll,
		injector:    inj,
		router:      router,
		sched:       sched,
		history:     history,
		bus:         NewEventBus(cfg.EventBufferSize),
		pool:        pool,
		clock:       clockwork.NewRealClock(),
		logger:      logger.GetLogger("canary"),
		deployments: make(map[string]*deployment),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.breaker = rollback.NewCircuitBreaker(cfg.Breaker, sched,
		e.activeRoutes, coll.GetSnapshot, e.breakerEmergency,
		rollback.WithBreakerClock(e.clock),
		rollback.WithBreakerLogger(e.logger))
	return e, nil
}

// Start 启动常驻熔断器（幂等，Breaker.Enabled=false 时无操作）
func (e *Deployer) Start() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.breaker.Start()
}

// Deploy 校验计划、挂载补丁并启动首阶段，立即返回部署 ID
// 阶段推进与健康监督在后台进行，进展通过 GetStatus / 事件总线观察
//
// 同步失败情形：部署器已关闭（ErrClosed）、计划非法（ErrValidation）、
// 并发部署已达上限（ErrCapacity）、注入器拒绝补丁（注入器错误透传）
func (e *Deployer) Deploy(ctx context.Context, patch injector.HandlerPatch,
	callable interface{}, plan Plan) (string, error) {

	if e.closed.Load() {
		return "", ErrClosed
	}

	// 未指定阶段时使用默认三阶段计划
	if len(plan.Stages) == 0 {
		plan = DefaultPlan()
	}
	plan.ApplyDefaults()
	if err := plan.Validate(); err != nil {
		return "", ErrValidation.WithCause(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeCountLocked() >= e.config.MaxConcurrentDeployments {
		return "", ErrCapacity.WithData("max_concurrent_deployments", e.config.MaxConcurrentDeployments)
	}

	injID, err := e.injector.Attach(patch, callable)
	if err != nil {
		return "", err
	}

	route := patch.TargetRoute
	now := e.clock.Now()
	d := &deployment{
		id:          uuid.New().String(),
		route:       route,
		patchName:   patch.Name,
		injectionID: injID,
		plan:        plan,
		state:       StatePlanning,
		startedAt:   now,
		updatedAt:   now,
		eventsCap:   e.config.EventLogSize,
	}

	e.collector.StartCollection(route)
	e.router.SetSplit(route, 0)

	// 独立回滚监控：宿主配置的触发器（如绝对延迟预算）保留，
	// 计划阈值派生的触发器追加其后，观测参数跟随计划
	monCfg := e.config.Monitor
	monCfg.Window = plan.Monitoring.Window
	monCfg.MinSamples = plan.Monitoring.MinSamples
	monCfg.Triggers = append(append([]rollback.Trigger{}, e.config.Monitor.Triggers...),
		rollback.Trigger{Metric: rollback.MetricErrorRate, Threshold: plan.Thresholds.MaxErrorRate},
		rollback.Trigger{Metric: rollback.MetricSuccessRate, Threshold: plan.Thresholds.MinSuccessRate})
	d.monitor = rollback.NewMonitor(d.id, monCfg, e.sched,
		func() metrics.Snapshot {
			return e.collector.GetSnapshot(route, plan.Monitoring.Window)
		},
		func(ctx context.Context, source rollback.TriggerSource, reason string) error {
			return e.rollback(ctx, d, source, reason)
		},
		rollback.WithMonitorClock(e.clock),
		rollback.WithMonitorLogger(e.logger))

	// Planning → Deploying：首阶段流量切分
	stage0 := plan.Stages[0]
	d.mu.Lock()
	_ = d.transitionLocked(StateDeploying, now)
	d.setTrafficLocked(stage0.Percentage, false)
	d.stageStartedAt = now
	d.appendEventLocked(Event{
		Type:         EventDeploymentStarted,
		DeploymentID: d.id,
		Route:        route,
		State:        StateDeploying,
		TrafficPct:   stage0.Percentage,
		At:           now,
	})
	d.mu.Unlock()
	e.router.SetSplit(route, stage0.Percentage)

	task, err := e.sched.Every(plan.Monitoring.SampleInterval,
		fmt.Sprintf("canary-stage-%s", d.id),
		func(ctx context.Context) { e.stagePoll(ctx, d) })
	if err != nil {
		e.abortDeployLocked(d)
		return "", fmt.Errorf("start stage supervision failed: %w", err)
	}
	d.mu.Lock()
	d.stageTask = task
	d.mu.Unlock()

	if err := d.monitor.Start(); err != nil {
		task.Cancel()
		e.abortDeployLocked(d)
		return "", err
	}

	e.deployments[d.id] = d

	e.bus.Publish(Event{
		Type:         EventDeploymentStarted,
		DeploymentID: d.id,
		Route:        route,
		State:        StateDeploying,
		TrafficPct:   stage0.Percentage,
		At:           now,
	})
	e.otel.RecordDeploymentStarted(ctx, route)
	e.logger.InfoCtx(ctx, "canary deployment started",
		zap.String("deployment_id", d.id),
		zap.String("route", route),
		zap.String("patch", patch.Name),
		zap.Int("initial_traffic", stage0.Percentage),
		zap.Int("stages", len(plan.Stages)))
	return d.id, nil
}

// abortDeployLocked 回收 Deploy 过程中已占用的资源（调用方持有 e.mu）
func (e *Deployer) abortDeployLocked(d *deployment) {
	_ = e.injector.Detach(d.injectionID)
	e.collector.StopCollection(d.route)
	e.router.Remove(d.route)
}

// GetStatus 查询部署状态
func (e *Deployer) GetStatus(id string) (Status, error) {
	d, ok := e.get(id)
	if !ok {
		return Status{}, ErrDeploymentNotFound.WithData("deployment_id", id)
	}
	return d.status(), nil
}

// Events 查询部署的事件日志（有界，最旧的已淘汰）
func (e *Deployer) Events(id string) ([]Event, error) {
	d, ok := e.get(id)
	if !ok {
		return nil, ErrDeploymentNotFound.WithData("deployment_id", id)
	}
	return d.eventLog(), nil
}

// ListActive 非终态部署列表（按启动时间排序）
func (e *Deployer) ListActive() []Status {
	return e.list(true)
}

// List 全部部署列表（含终态，按启动时间排序）
func (e *Deployer) List() []Status {
	return e.list(false)
}

func (e *Deployer) list(activeOnly bool) []Status {
	e.mu.RLock()
	all := make([]*deployment, 0, len(e.deployments))
	for _, d := range e.deployments {
		all = append(all, d)
	}
	e.mu.RUnlock()

	out := make([]Status, 0, len(all))
	for _, d := range all {
		st := d.status()
		if activeOnly && (st.State == StateCompleted.String() || st.State == StateFailed.String()) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// CancelDeployment 手动回滚（操作员发起，幂等）
// 已完成的部署不可取消（ErrInvalidTransition）
func (e *Deployer) CancelDeployment(ctx context.Context, id string, reason string) error {
	d, ok := e.get(id)
	if !ok {
		return ErrDeploymentNotFound.WithData("deployment_id", id)
	}
	if reason == "" {
		reason = "manual cancellation"
	}
	return e.rollback(ctx, d, rollback.SourceManual, reason)
}

// EmergencyRollbackAll 并发回滚所有非终态部署并紧急停用所有补丁
// 单个部署的回滚失败不阻止其余部署回滚
func (e *Deployer) EmergencyRollbackAll(ctx context.Context, reason string) error {
	return e.emergencyRollback(ctx, rollback.SourceManual, reason)
}

// emergencyRollback 紧急回滚：全部活跃部署立即切零（不走分级降流量），
// 随后无论单个回滚成败都停用全部补丁
func (e *Deployer) emergencyRollback(ctx context.Context, source rollback.TriggerSource, reason string) error {
	e.mu.RLock()
	active := make([]*deployment, 0, len(e.deployments))
	for _, d := range e.deployments {
		if !d.currentState().IsTerminal() {
			active = append(active, d)
		}
	}
	e.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range active {
		d := d
		g.Go(func() error {
			return e.rollbackWith(gctx, d, source, reason, true)
		})
	}
	err := g.Wait()

	// 最后防线：无论单个回滚成败，停用全部补丁
	e.injector.EmergencyStopAll()
	return err
}

// Bus 事件总线（订阅部署事件）
func (e *Deployer) Bus() *EventBus {
	return e.bus
}

// Breaker 常驻熔断器
func (e *Deployer) Breaker() *rollback.CircuitBreaker {
	return e.breaker
}

// Close 关闭部署器：停止熔断器与所有监督任务，释放任务池（幂等）
// 不回滚进行中的部署，进程重启后的收敛由运维决定
func (e *Deployer) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.breaker.Stop()

	e.mu.RLock()
	for _, d := range e.deployments {
		d.mu.Lock()
		task := d.stageTask
		mon := d.monitor
		d.mu.Unlock()
		if task != nil {
			task.Cancel()
		}
		if mon != nil {
			mon.Stop()
		}
	}
	e.mu.RUnlock()

	e.bus.Close()
	e.pool.Release()
	return nil
}

// get 按 ID 查询部署
func (e *Deployer) get(id string) (*deployment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.deployments[id]
	return d, ok
}

// activeCountLocked 非终态部署数（调用方持有 e.mu）
func (e *Deployer) activeCountLocked() int {
	count := 0
	for _, d := range e.deployments {
		if !d.currentState().IsTerminal() {
			count++
		}
	}
	return count
}

// ActiveCount 非终态部署数（OTel gauge 回调使用）
func (e *Deployer) ActiveCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(e.activeCountLocked())
}

// activeRoutes 非终态部署覆盖的路由（熔断器守护范围）
func (e *Deployer) activeRoutes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	routes := make([]string, 0, len(e.deployments))
	for _, d := range e.deployments {
		if !d.currentState().IsTerminal() {
			routes = append(routes, d.route)
		}
	}
	sort.Strings(routes)
	return routes
}

// breakerEmergency 熔断动作：回滚全部活跃部署并紧急停用注入器
// 单路由击穿即触发全局停用——熔断生效说明逐部署监督已不足采信
func (e *Deployer) breakerEmergency(ctx context.Context, route string, reason string) {
	full := fmt.Sprintf("circuit breaker tripped on %s: %s", route, reason)
	if err := e.emergencyRollback(ctx, rollback.SourceCircuitBreaker, full); err != nil {
		e.logger.ErrorCtx(ctx, "circuit breaker emergency rollback failed",
			zap.String("route", route), zap.Error(err))
	}
}

// stagePoll 阶段监督单次轮询
//
// 决策顺序：健康越界 → 回滚；阶段时长未满 → 等待；样本充足 → 推进；
// 样本不足且超出安全时限 → 按监督超时回滚
func (e *Deployer) stagePoll(ctx context.Context, d *deployment) {
	now := e.clock.Now()

	d.mu.Lock()
	switch d.state {
	case StateDeploying:
		// 首次轮询：监督已生效
		_ = d.transitionLocked(StateMonitoring, now)
	case StateMonitoring:
	default:
		// 离开 Monitoring 的迁移都已注销阶段任务；RollingBack 期间
		// 槽位可能被分级降流量任务复用，这里不能再注销
		d.mu.Unlock()
		return
	}
	stageIdx := d.stageIndex
	stageStart := d.stageStartedAt
	captured := d.baselineCaptured
	d.mu.Unlock()

	// 基线：监控开始后首个非空快照作为对照，窗口内补丁流量占比尚小；
	// 路由暂无流量时留到后续轮询重试，不能一次空窗就放弃
	if !captured {
		if snap := e.collector.GetSnapshot(d.route, d.plan.Monitoring.Window); !snap.IsEmpty() {
			e.collector.SetBaseline(d.route, snap)
			d.mu.Lock()
			d.baselineCaptured = true
			d.mu.Unlock()
		}
	}

	report := e.collector.CheckHealth(d.route, d.plan.Monitoring.Window, e.effectiveThresholds(d, stageIdx))
	if !report.Healthy {
		reason := fmt.Sprintf("stage %d unhealthy: %s", stageIdx, strings.Join(report.Issues, "; "))
		if err := e.rollback(ctx, d, rollback.SourceAutomatic, reason); err != nil {
			e.logger.ErrorCtx(ctx, "stage rollback failed",
				zap.String("deployment_id", d.id), zap.Error(err))
		}
		return
	}

	stage := d.plan.Stages[stageIdx]
	elapsed := now.Sub(stageStart)
	if elapsed < stage.Duration {
		return
	}

	// 阶段时长已到：推进需要足够样本支撑健康结论
	if report.Snapshot.SampleSize < d.plan.Monitoring.MinSamples {
		if elapsed >= stage.Duration+e.config.StageTimeoutBuffer {
			reason := fmt.Sprintf("%s: stage %d got %d samples within safety timeout",
				ErrMonitoringTimeout.Message(), stageIdx, report.Snapshot.SampleSize)
			if err := e.rollback(ctx, d, rollback.SourceAutomatic, reason); err != nil {
				e.logger.ErrorCtx(ctx, "stage timeout rollback failed",
					zap.String("deployment_id", d.id), zap.Error(err))
			}
		}
		return
	}

	e.advanceStage(ctx, d, stageIdx, now)
}

// effectiveThresholds 阶段生效的健康阈值
// 延迟上限由基线放大系数推导，基线缺失时不做延迟判断
func (e *Deployer) effectiveThresholds(d *deployment, stageIdx int) metrics.HealthThresholds {
	th := metrics.HealthThresholds{
		MinSuccessRate: d.plan.effectiveSuccessRate(stageIdx),
		MaxErrorRate:   d.plan.effectiveErrorRate(stageIdx),
		MinSamples:     d.plan.Monitoring.MinSamples,
	}
	if ratio := d.plan.Thresholds.LatencyIncreaseRatio; ratio > 0 {
		if baseline, ok := e.collector.GetBaseline(d.route); ok && baseline.AvgLatencyMs > 0 {
			th.MaxAvgLatencyMs = baseline.AvgLatencyMs * ratio
		}
	}
	return th
}

// advanceStage 推进到下一阶段或完成部署
func (e *Deployer) advanceStage(ctx context.Context, d *deployment, fromIdx int, now time.Time) {
	d.mu.Lock()
	if d.state != StateMonitoring || d.stageIndex != fromIdx {
		d.mu.Unlock()
		return
	}

	// 末阶段健康通过：部署完成
	if fromIdx == len(d.plan.Stages)-1 {
		_ = d.transitionLocked(StateCompleted, now)
		ev := Event{
			Type:         EventDeploymentCompleted,
			DeploymentID: d.id,
			Route:        d.route,
			State:        StateCompleted,
			TrafficPct:   d.trafficPct,
			StageIndex:   fromIdx,
			At:           now,
		}
		d.appendEventLocked(ev)
		task := d.stageTask
		mon := d.monitor
		d.mu.Unlock()

		if task != nil {
			task.Cancel()
		}
		if mon != nil {
			mon.Stop()
		}
		// 全量放行后停止采集，补丁保持挂载承接 100% 流量
		e.collector.StopCollection(d.route)
		e.bus.Publish(ev)
		e.otel.RecordDeploymentCompleted(ctx, d.route)
		e.logger.InfoCtx(ctx, "canary deployment completed",
			zap.String("deployment_id", d.id), zap.String("route", d.route))
		return
	}

	next := d.plan.Stages[fromIdx+1]
	d.stageIndex = fromIdx + 1
	d.stageStartedAt = now
	d.setTrafficLocked(next.Percentage, false)
	d.updatedAt = now
	ev := Event{
		Type:         EventStageAdvanced,
		DeploymentID: d.id,
		Route:        d.route,
		State:        StateMonitoring,
		TrafficPct:   next.Percentage,
		StageIndex:   d.stageIndex,
		At:           now,
	}
	d.appendEventLocked(ev)
	d.mu.Unlock()

	e.router.SetSplit(d.route, next.Percentage)
	e.bus.Publish(ev)
	e.otel.RecordStageAdvance(ctx, d.route, next.Percentage)
	e.logger.InfoCtx(ctx, "canary stage advanced",
		zap.String("deployment_id", d.id),
		zap.String("route", d.route),
		zap.Int("stage", fromIdx+1),
		zap.Int("traffic", next.Percentage))
}

// rollback 幂等回滚执行
//
// 多个触发方（阶段监督、独立监控、熔断器、手动取消）竞争时，
// 第一个完成 RollingBack 迁移的生效，其余直接返回 nil；
// 已完成的部署不可回滚
func (e *Deployer) rollback(ctx context.Context, d *deployment,
	source rollback.TriggerSource, reason string) error {
	return e.rollbackWith(ctx, d, source, reason, false)
}

// rollbackWith 回滚执行入口
// forceImmediate 用于紧急路径（熔断、全局回滚）：无视计划的 gradual 声明直接切零
func (e *Deployer) rollbackWith(ctx context.Context, d *deployment,
	source rollback.TriggerSource, reason string, forceImmediate bool) error {

	started := e.clock.Now()

	d.mu.Lock()
	switch d.state {
	case StateRollingBack, StateFailed:
		d.mu.Unlock()
		return nil
	case StateCompleted:
		d.mu.Unlock()
		return ErrInvalidTransition.WithData("from", StateCompleted.String())
	}
	if err := d.transitionLocked(StateRollingBack, started); err != nil {
		d.mu.Unlock()
		return err
	}
	startEv := Event{
		Type:         EventRollbackStarted,
		DeploymentID: d.id,
		Route:        d.route,
		State:        StateRollingBack,
		TrafficPct:   d.trafficPct,
		StageIndex:   d.stageIndex,
		Reason:       reason,
		At:           started,
	}
	d.appendEventLocked(startEv)
	task := d.stageTask
	mon := d.monitor
	strategy := d.plan.RollbackStrategy
	d.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	if mon != nil {
		mon.Stop()
	}
	e.bus.Publish(startEv)
	e.logger.WarnCtx(ctx, "rollback started",
		zap.String("deployment_id", d.id),
		zap.String("route", d.route),
		zap.String("source", string(source)),
		zap.String("reason", reason))

	if forceImmediate {
		strategy = rollback.StrategyImmediate
	}
	if strategy == rollback.StrategyGradual {
		if err := e.scheduleGradualSteps(d, source, reason, started); err == nil {
			return nil
		}
		// 调度器不可用（通常在关闭中）：退化为立即切零
		strategy = rollback.StrategyImmediate
	}

	e.router.SetSplit(d.route, 0)
	return e.finishRollback(ctx, d, source, strategy, reason, started)
}

// gradualSteps 低于当前流量的阶段档位降序排列，末位补 0
func gradualSteps(stages []Stage, current int) []int {
	steps := make([]int, 0, len(stages)+1)
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i].Percentage < current {
			steps = append(steps, stages[i].Percentage)
		}
	}
	return append(steps, 0)
}

// scheduleGradualSteps 分级降流量：按计划的轮询节拍沿阶段档位降到 0 后收尾
// 降流量期间部署停留在 RollingBack，补丁保持挂载承接逐步缩小的流量
func (e *Deployer) scheduleGradualSteps(d *deployment,
	source rollback.TriggerSource, reason string, started time.Time) error {

	d.mu.Lock()
	steps := gradualSteps(d.plan.Stages, d.trafficPct)
	d.mu.Unlock()

	var (
		stepMu sync.Mutex
		next   int
	)
	task, err := e.sched.Every(d.plan.Monitoring.SampleInterval,
		fmt.Sprintf("canary-rollback-%s", d.id),
		func(ctx context.Context) {
			stepMu.Lock()
			if next >= len(steps) {
				stepMu.Unlock()
				return
			}
			pct := steps[next]
			next++
			stepMu.Unlock()

			d.mu.Lock()
			d.setTrafficLocked(pct, true)
			d.updatedAt = e.clock.Now()
			d.mu.Unlock()
			e.router.SetSplit(d.route, pct)

			if pct > 0 {
				e.logger.InfoCtx(ctx, "gradual rollback step",
					zap.String("deployment_id", d.id),
					zap.String("route", d.route),
					zap.Int("traffic", pct))
				return
			}

			d.mu.Lock()
			stepTask := d.stageTask
			d.mu.Unlock()
			if stepTask != nil {
				stepTask.Cancel()
			}
			_ = e.finishRollback(ctx, d, source, rollback.StrategyGradual, reason, started)
		})
	if err != nil {
		return err
	}

	// 复用 stageTask 槽位：原阶段监督已注销，Close 时可一并取消
	d.mu.Lock()
	d.stageTask = task
	d.mu.Unlock()
	return nil
}

// finishRollback 回滚收尾：摘除补丁、停止采集、写审计、标记失败
// 补丁摘除失败只进记录，部署仍然标记为 Failed
func (e *Deployer) finishRollback(ctx context.Context, d *deployment,
	source rollback.TriggerSource, strategy rollback.Strategy,
	reason string, started time.Time) error {

	d.mu.Lock()
	injID := d.injectionID
	d.mu.Unlock()

	var execErr error
	if err := e.injector.Detach(injID); err != nil {
		execErr = err
	}
	e.collector.StopCollection(d.route)
	e.router.Remove(d.route)

	finished := e.clock.Now()
	rec := rollback.Record{
		ID:           uuid.New().String(),
		DeploymentID: d.id,
		Route:        d.route,
		Source:       source,
		Strategy:     strategy,
		Reason:       reason,
		StartedAt:    started,
		FinishedAt:   finished,
		Success:      execErr == nil,
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}

	// 审计写入走任务池，回滚路径不等待存储 I/O
	e.submit(func() {
		wctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := e.history.Add(wctx, rec); err != nil {
			e.logger.Error("rollback record write failed",
				zap.String("deployment_id", rec.DeploymentID), zap.Error(err))
		}
	})

	d.mu.Lock()
	d.setTrafficLocked(0, true)
	d.failureReason = reason
	_ = d.transitionLocked(StateFailed, finished)
	doneEv := Event{
		Type:         EventRollbackCompleted,
		DeploymentID: d.id,
		Route:        d.route,
		State:        StateFailed,
		TrafficPct:   0,
		StageIndex:   d.stageIndex,
		Reason:       reason,
		At:           finished,
	}
	d.appendEventLocked(doneEv)
	d.mu.Unlock()

	e.bus.Publish(doneEv)
	e.otel.RecordRollback(ctx, d.route, string(source))
	e.logger.WarnCtx(ctx, "rollback completed",
		zap.String("deployment_id", d.id),
		zap.String("route", d.route),
		zap.String("strategy", string(strategy)),
		zap.Bool("success", execErr == nil))
	return execErr
}

// submit 提交后台任务，池满或已关闭时回退为同步执行
func (e *Deployer) submit(task func()) {
	if e.pool != nil && !e.pool.IsClosed() {
		if err := e.pool.Submit(task); err == nil {
			return
		}
	}
	task()
}
