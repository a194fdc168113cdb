package rollback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KOMKZ/go-yogan-canary/metrics"
)

func snap(successRate, errorRate float64, samples int) metrics.Snapshot {
	return metrics.Snapshot{
		SuccessRate: successRate,
		ErrorRate:   errorRate,
		SampleSize:  samples,
	}
}

func TestEvaluator_CriticalRule(t *testing.T) {
	t.Run("错误率单次超过0.5立即触发", func(t *testing.T) {
		e := newEvaluator(nil, 10)
		d := e.observe(snap(0.4, 0.6, 100), time.Now())
		assert.True(t, d.ShouldRollback)
		assert.True(t, d.Critical)
	})

	t.Run("成功率单次低于0.5立即触发", func(t *testing.T) {
		e := newEvaluator(nil, 10)
		d := e.observe(snap(0.45, 0.3, 100), time.Now())
		assert.True(t, d.ShouldRollback)
		assert.True(t, d.Critical)
	})

	t.Run("样本不足时空快照不触发", func(t *testing.T) {
		e := newEvaluator(nil, 10)
		// 空快照成功率为 0，但样本为 0，不是退化信号
		d := e.observe(snap(0, 0, 0), time.Now())
		assert.False(t, d.ShouldRollback)
	})
}

func TestEvaluator_SustainedRule(t *testing.T) {
	triggers := []Trigger{{Metric: MetricErrorRate, Threshold: 0.05}}

	t.Run("60秒内3次违规触发", func(t *testing.T) {
		e := newEvaluator(triggers, 10)
		now := time.Now()

		// 错误率 0.30 超阈值但未达临界，需要累计 3 次
		d := e.observe(snap(0.7, 0.3, 100), now)
		assert.False(t, d.ShouldRollback)
		d = e.observe(snap(0.7, 0.3, 100), now.Add(5*time.Second))
		assert.False(t, d.ShouldRollback)
		d = e.observe(snap(0.7, 0.3, 100), now.Add(10*time.Second))
		assert.True(t, d.ShouldRollback)
		assert.False(t, d.Critical)
	})

	t.Run("违规分散在窗口外不触发", func(t *testing.T) {
		e := newEvaluator(triggers, 10)
		now := time.Now()

		e.observe(snap(0.7, 0.3, 100), now)
		e.observe(snap(0.7, 0.3, 100), now.Add(70*time.Second))
		d := e.observe(snap(0.7, 0.3, 100), now.Add(140*time.Second))
		assert.False(t, d.ShouldRollback)
	})

	t.Run("健康观测不累计违规", func(t *testing.T) {
		e := newEvaluator(triggers, 10)
		now := time.Now()

		e.observe(snap(0.7, 0.3, 100), now)
		e.observe(snap(0.99, 0.01, 100), now.Add(5*time.Second))
		e.observe(snap(0.7, 0.3, 100), now.Add(10*time.Second))
		d := e.observe(snap(0.99, 0.01, 100), now.Add(15*time.Second))
		assert.False(t, d.ShouldRollback)
	})

	t.Run("延迟触发器", func(t *testing.T) {
		e := newEvaluator([]Trigger{{Metric: MetricLatency, Threshold: 200}}, 10)
		now := time.Now()

		high := metrics.Snapshot{SuccessRate: 1, AvgLatencyMs: 500, SampleSize: 100}
		e.observe(high, now)
		e.observe(high, now.Add(5*time.Second))
		d := e.observe(high, now.Add(10*time.Second))
		assert.True(t, d.ShouldRollback)
	})

	t.Run("成功率触发器方向为低于阈值", func(t *testing.T) {
		e := newEvaluator([]Trigger{{Metric: MetricSuccessRate, Threshold: 0.95}}, 10)
		now := time.Now()

		// 0.90 低于 0.95 但高于临界 0.5
		low := snap(0.90, 0.10, 100)
		e.observe(low, now)
		e.observe(low, now.Add(5*time.Second))
		d := e.observe(low, now.Add(10*time.Second))
		assert.True(t, d.ShouldRollback)
	})
}
