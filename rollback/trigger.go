// Package rollback 提供回滚触发评估、独立监控循环、回滚历史与熔断器
//
// 设计理念：
//   - 监控循环独立于部署器的阶段监督，二者都能发起回滚，执行侧负责幂等
//   - 两级触发：临界规则（单次观测即回滚）与持续违规规则（60 秒内同一
//     指标 ≥3 次越界），区分噪声与真实退化
//   - 回滚执行是 best-effort：失败会记录，但绝不阻止部署被标记为失败
package rollback

import (
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-canary/metrics"
)

// Metric 触发器监控的指标
type Metric string

const (
	// MetricErrorRate 错误率（越界方向：高于阈值）
	MetricErrorRate Metric = "error_rate"

	// MetricSuccessRate 成功率（越界方向：低于阈值）
	MetricSuccessRate Metric = "success_rate"

	// MetricLatency 平均延迟毫秒（越界方向：高于阈值）
	MetricLatency Metric = "latency"
)

// 临界规则阈值：单次观测即回滚，不等持续窗口
const (
	criticalErrorRate   = 0.5
	criticalSuccessRate = 0.5
)

// sustainedWindow 持续违规规则的追溯窗口
const sustainedWindow = 60 * time.Second

// sustainedCount 追溯窗口内触发回滚所需的违规次数
const sustainedCount = 3

// Trigger 回滚触发器
type Trigger struct {
	Metric    Metric        `json:"metric" mapstructure:"metric"`
	Threshold float64       `json:"threshold" mapstructure:"threshold"`
	Sustained time.Duration `json:"sustained" mapstructure:"sustained"` // 0 使用默认 60s 窗口
}

// Violation 一次越界观测
type Violation struct {
	Metric   Metric    `json:"metric"`
	Observed float64   `json:"observed"`
	At       time.Time `json:"at"`
}

// Decision 评估结论
type Decision struct {
	ShouldRollback bool
	Critical       bool   // 是否由临界规则触发
	Reason         string // 人读理由
}

// evaluator 触发评估器（单部署，非并发安全，由 Monitor 串行驱动）
type evaluator struct {
	triggers   []Trigger
	minSamples int
	violations map[Metric][]Violation
}

func newEvaluator(triggers []Trigger, minSamples int) *evaluator {
	if minSamples <= 0 {
		minSamples = 10
	}
	return &evaluator{
		triggers:   triggers,
		minSamples: minSamples,
		violations: make(map[Metric][]Violation),
	}
}

// observe 评估一个快照
// 样本数低于门槛时不做任何判断（空快照的 0 成功率不是退化信号）
func (e *evaluator) observe(snap metrics.Snapshot, now time.Time) Decision {
	if snap.SampleSize < e.minSamples {
		return Decision{}
	}

	// 临界规则：单次观测即回滚
	if snap.ErrorRate > criticalErrorRate {
		return Decision{
			ShouldRollback: true,
			Critical:       true,
			Reason:         fmt.Sprintf("critical: error rate %.4f exceeds %.2f", snap.ErrorRate, criticalErrorRate),
		}
	}
	if snap.SuccessRate < criticalSuccessRate {
		return Decision{
			ShouldRollback: true,
			Critical:       true,
			Reason:         fmt.Sprintf("critical: success rate %.4f below %.2f", snap.SuccessRate, criticalSuccessRate),
		}
	}

	// 持续违规规则：同一指标在追溯窗口内 ≥3 次越界
	for _, tr := range e.triggers {
		observed, violated := tr.check(snap)
		if !violated {
			continue
		}
		e.violations[tr.Metric] = append(e.violations[tr.Metric], Violation{
			Metric:   tr.Metric,
			Observed: observed,
			At:       now,
		})

		window := tr.Sustained
		if window <= 0 {
			window = sustainedWindow
		}
		recent := e.recentViolations(tr.Metric, now, window)
		if len(recent) >= sustainedCount {
			return Decision{
				ShouldRollback: true,
				Reason: fmt.Sprintf("sustained: %s violated threshold %.4f in %d of last %d polls (latest %.4f)",
					tr.Metric, tr.Threshold, len(recent), len(recent), observed),
			}
		}
	}
	return Decision{}
}

// check 单触发器越界判断，返回观测值与是否越界
func (t Trigger) check(snap metrics.Snapshot) (float64, bool) {
	switch t.Metric {
	case MetricErrorRate:
		return snap.ErrorRate, snap.ErrorRate > t.Threshold
	case MetricSuccessRate:
		return snap.SuccessRate, snap.SuccessRate < t.Threshold
	case MetricLatency:
		return snap.AvgLatencyMs, snap.AvgLatencyMs > t.Threshold
	default:
		return 0, false
	}
}

// recentViolations 追溯窗口内的违规并顺带裁剪过期记录
func (e *evaluator) recentViolations(metric Metric, now time.Time, window time.Duration) []Violation {
	cutoff := now.Add(-window)
	all := e.violations[metric]
	kept := all[:0]
	for _, v := range all {
		if v.At.After(cutoff) {
			kept = append(kept, v)
		}
	}
	e.violations[metric] = kept
	return kept
}
