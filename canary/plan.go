package canary

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/KOMKZ/go-yogan-canary/rollback"
)

// Stage 部署阶段
// 流量百分比逐阶段递增，最后一个阶段必须到达 100
type Stage struct {
	// Percentage 本阶段路由到补丁的流量百分比（1-100）
	Percentage int `json:"percentage" mapstructure:"percentage"`

	// Duration 本阶段的监督时长（到期且健康则推进）
	Duration time.Duration `json:"duration" mapstructure:"duration"`

	// MinSuccessRate 阶段级成功率下限，0 表示继承计划级阈值
	MinSuccessRate float64 `json:"min_success_rate" mapstructure:"min_success_rate"`

	// MaxErrorRate 阶段级错误率上限，0 表示继承计划级阈值
	MaxErrorRate float64 `json:"max_error_rate" mapstructure:"max_error_rate"`
}

// Thresholds 计划级回滚阈值
type Thresholds struct {
	// MinSuccessRate 成功率低于此值视为越界（默认 0.95）
	MinSuccessRate float64 `json:"min_success_rate" mapstructure:"min_success_rate"`

	// MaxErrorRate 错误率高于此值视为越界（默认 0.05）
	MaxErrorRate float64 `json:"max_error_rate" mapstructure:"max_error_rate"`

	// LatencyIncreaseRatio 相对基线的延迟放大上限（如 1.5 表示
	// 平均延迟不得超过基线的 1.5 倍），0 表示不做延迟判断
	LatencyIncreaseRatio float64 `json:"latency_increase_ratio" mapstructure:"latency_increase_ratio"`
}

// Monitoring 阶段监督的观测参数
type Monitoring struct {
	// Window 健康评估的快照窗口（默认 60s）
	Window time.Duration `json:"window" mapstructure:"window"`

	// SampleInterval 健康轮询间隔（默认 10s）
	SampleInterval time.Duration `json:"sample_interval" mapstructure:"sample_interval"`

	// MinSamples 阶段推进所需的最小样本数（默认 10）
	MinSamples int `json:"min_samples" mapstructure:"min_samples"`
}

// Plan 金丝雀部署计划
type Plan struct {
	// Stages 流量阶段，按序执行
	Stages []Stage `json:"stages" mapstructure:"stages"`

	// Thresholds 计划级回滚阈值（阶段可覆盖）
	Thresholds Thresholds `json:"thresholds" mapstructure:"thresholds"`

	// Monitoring 阶段监督参数
	Monitoring Monitoring `json:"monitoring" mapstructure:"monitoring"`

	// RollbackStrategy 回滚策略（默认 immediate；gradual 按阶段档位
	// 逐步降到 0，紧急回滚路径无视声明立即切零）
	RollbackStrategy rollback.Strategy `json:"rollback_strategy" mapstructure:"rollback_strategy"`
}

// DefaultPlan 默认三阶段计划：10% → 50% → 100%
func DefaultPlan() Plan {
	return Plan{
		Stages: []Stage{
			{Percentage: 10, Duration: 5 * time.Minute},
			{Percentage: 50, Duration: 5 * time.Minute},
			{Percentage: 100, Duration: 5 * time.Minute},
		},
		Thresholds: Thresholds{
			MinSuccessRate:       0.95,
			MaxErrorRate:         0.05,
			LatencyIncreaseRatio: 1.5,
		},
		Monitoring: Monitoring{
			Window:         time.Minute,
			SampleInterval: 10 * time.Second,
			MinSamples:     10,
		},
	}
}

// ApplyDefaults 零值字段自动填充为默认值（不补全 Stages）
func (p *Plan) ApplyDefaults() {
	def := DefaultPlan()
	if p.Thresholds.MinSuccessRate <= 0 {
		p.Thresholds.MinSuccessRate = def.Thresholds.MinSuccessRate
	}
	if p.Thresholds.MaxErrorRate <= 0 {
		p.Thresholds.MaxErrorRate = def.Thresholds.MaxErrorRate
	}
	if p.Monitoring.Window <= 0 {
		p.Monitoring.Window = def.Monitoring.Window
	}
	if p.Monitoring.SampleInterval <= 0 {
		p.Monitoring.SampleInterval = def.Monitoring.SampleInterval
	}
	if p.Monitoring.MinSamples <= 0 {
		p.Monitoring.MinSamples = def.Monitoring.MinSamples
	}
	if p.RollbackStrategy == "" {
		p.RollbackStrategy = rollback.StrategyImmediate
	}
}

// Validate 校验计划
// 约束：阶段非空、百分比严格递增且落在 (0,100]、末阶段必须 100、
// 各阶段时长为正、阈值落在合法区间
func (p Plan) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Stages, validation.Required.Error("plan must have at least one stage")),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&p.Thresholds,
		validation.Field(&p.Thresholds.MinSuccessRate, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.Thresholds.MaxErrorRate, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return err
	}
	if r := p.Thresholds.LatencyIncreaseRatio; r != 0 && r < 1 {
		return fmt.Errorf("latency_increase_ratio must be >= 1, got %.2f", r)
	}

	prev := 0
	for i, stage := range p.Stages {
		if stage.Percentage <= 0 || stage.Percentage > 100 {
			return fmt.Errorf("stage %d: percentage %d out of range (0,100]", i, stage.Percentage)
		}
		if stage.Percentage <= prev {
			return fmt.Errorf("stage %d: percentage %d not greater than previous %d", i, stage.Percentage, prev)
		}
		if stage.Duration <= 0 {
			return fmt.Errorf("stage %d: duration must be positive", i)
		}
		if stage.MinSuccessRate < 0 || stage.MinSuccessRate > 1 {
			return fmt.Errorf("stage %d: min_success_rate out of range [0,1]", i)
		}
		if stage.MaxErrorRate < 0 || stage.MaxErrorRate > 1 {
			return fmt.Errorf("stage %d: max_error_rate out of range [0,1]", i)
		}
		prev = stage.Percentage
	}
	if last := p.Stages[len(p.Stages)-1].Percentage; last != 100 {
		return fmt.Errorf("final stage must reach 100%%, got %d", last)
	}
	return nil
}

// effectiveSuccessRate 阶段生效的成功率下限
func (p Plan) effectiveSuccessRate(stageIdx int) float64 {
	if s := p.Stages[stageIdx].MinSuccessRate; s > 0 {
		return s
	}
	return p.Thresholds.MinSuccessRate
}

// effectiveErrorRate 阶段生效的错误率上限
func (p Plan) effectiveErrorRate(stageIdx int) float64 {
	if s := p.Stages[stageIdx].MaxErrorRate; s > 0 {
		return s
	}
	return p.Thresholds.MaxErrorRate
}
