package canary

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelCanaryMetrics OpenTelemetry 指标（部署生命周期计数与活跃部署规模）
// 所有记录方法对 nil 接收者与未注册状态安全，部署器无需判空
type OTelCanaryMetrics struct {
	mu         sync.RWMutex
	registered bool

	deploymentsTotal metric.Int64Counter
	completedTotal   metric.Int64Counter
	rollbacksTotal   metric.Int64Counter
	stageAdvances    metric.Int64Counter
	activeGauge      metric.Int64ObservableGauge

	activeFn func() int64
}

// NewOTelCanaryMetrics 创建指标提供者
// activeFn 返回当前活跃（非终态）部署数，注册观测 gauge 时使用
func NewOTelCanaryMetrics(activeFn func() int64) *OTelCanaryMetrics {
	return &OTelCanaryMetrics{activeFn: activeFn}
}

// MetricsName 指标组名称
func (m *OTelCanaryMetrics) MetricsName() string {
	return "canary"
}

// RegisterMetrics 向 Meter 注册全部指标
func (m *OTelCanaryMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	m.deploymentsTotal, err = meter.Int64Counter(
		"canary_deployments_total",
		metric.WithDescription("Total number of canary deployments started"),
		metric.WithUnit("{deployment}"),
	)
	if err != nil {
		return err
	}

	m.completedTotal, err = meter.Int64Counter(
		"canary_deployments_completed_total",
		metric.WithDescription("Total number of deployments that reached 100% traffic"),
		metric.WithUnit("{deployment}"),
	)
	if err != nil {
		return err
	}

	m.rollbacksTotal, err = meter.Int64Counter(
		"canary_rollbacks_total",
		metric.WithDescription("Total number of rollbacks by trigger source"),
		metric.WithUnit("{rollback}"),
	)
	if err != nil {
		return err
	}

	m.stageAdvances, err = meter.Int64Counter(
		"canary_stage_advances_total",
		metric.WithDescription("Total number of stage advancements"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return err
	}

	if m.activeFn != nil {
		m.activeGauge, err = meter.Int64ObservableGauge(
			"canary_active_deployments",
			metric.WithDescription("Current number of non-terminal deployments"),
			metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
				observer.Observe(m.activeFn())
				return nil
			}),
		)
		if err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

// IsRegistered 是否已注册
func (m *OTelCanaryMetrics) IsRegistered() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// RecordDeploymentStarted 记录一次部署启动
func (m *OTelCanaryMetrics) RecordDeploymentStarted(ctx context.Context, route string) {
	if !m.IsRegistered() {
		return
	}
	m.deploymentsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

// RecordDeploymentCompleted 记录一次部署完成
func (m *OTelCanaryMetrics) RecordDeploymentCompleted(ctx context.Context, route string) {
	if !m.IsRegistered() {
		return
	}
	m.completedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

// RecordRollback 记录一次回滚（按触发来源打标签）
func (m *OTelCanaryMetrics) RecordRollback(ctx context.Context, route string, source string) {
	if !m.IsRegistered() {
		return
	}
	m.rollbacksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("source", source),
	))
}

// RecordStageAdvance 记录一次阶段推进
func (m *OTelCanaryMetrics) RecordStageAdvance(ctx context.Context, route string, percentage int) {
	if !m.IsRegistered() {
		return
	}
	m.stageAdvances.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("percentage", percentage),
	))
}
