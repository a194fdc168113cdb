// Package metrics 提供按路由的请求指标采集与滚动窗口快照
//
// 设计理念：
//   - 写入路径（RecordSample）在请求热路径上，必须廉价：追加 + 批量惰性淘汰
//   - 快照是派生值，不落盘，按需计算
//   - 零样本返回哨兵快照（全 0），绝不返回 NaN 或报错
package metrics

import "time"

// StatusClass 请求结果分类
type StatusClass int

const (
	// StatusSuccess 成功（2xx/3xx）
	StatusSuccess StatusClass = iota

	// StatusError 失败（4xx/5xx 或 handler 异常）
	StatusError
)

// String returns the status class name
func (s StatusClass) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Sample 单次请求的观测样本
type Sample struct {
	Timestamp time.Time
	Status    StatusClass
	LatencyMs float64
	Route     string
}

// Snapshot 滚动窗口快照（派生值，线程安全的值拷贝）
//
// 零样本时所有比率为 0、SampleSize 为 0，调用方必须把
// SampleSize < MinSamples 视为统计不可靠，不得仅凭比率判定不健康
type Snapshot struct {
	Route            string    `json:"route"`
	SuccessRate      float64   `json:"success_rate"`
	ErrorRate        float64   `json:"error_rate"`
	AvgLatencyMs     float64   `json:"avg_latency_ms"`
	ThroughputPerSec float64   `json:"throughput_per_sec"`
	SampleSize       int       `json:"sample_size"`
	WindowStart      time.Time `json:"window_start"`
	CapturedAt       time.Time `json:"captured_at"`
}

// IsEmpty reports whether the snapshot carries no samples
func (s Snapshot) IsEmpty() bool {
	return s.SampleSize == 0
}

// BaselineDelta 相对基线的变化量
// 成功率/错误率为绝对差值，延迟/吞吐为相对比值（基线为 0 时比值为 0）
type BaselineDelta struct {
	DeltaSuccessRate float64 `json:"delta_success_rate"`
	DeltaErrorRate   float64 `json:"delta_error_rate"`
	LatencyRatio     float64 `json:"latency_ratio"`
	ThroughputRatio  float64 `json:"throughput_ratio"`
}

// HealthThresholds 健康检查阈值
type HealthThresholds struct {
	// MinSuccessRate 最低成功率 (0.0-1.0)
	MinSuccessRate float64 `mapstructure:"min_success_rate"`

	// MaxErrorRate 最高错误率 (0.0-1.0)
	MaxErrorRate float64 `mapstructure:"max_error_rate"`

	// MaxAvgLatencyMs 最高平均延迟（毫秒，0 表示不检查）
	MaxAvgLatencyMs float64 `mapstructure:"max_avg_latency_ms"`

	// MinSamples 最小样本数门槛（低于此值直接判定健康，避免小流量误杀）
	MinSamples int `mapstructure:"min_samples"`
}

// HealthReport 健康检查结果
type HealthReport struct {
	Healthy  bool     `json:"healthy"`
	Issues   []string `json:"issues,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}
