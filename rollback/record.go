package rollback

import "time"

// TriggerSource 回滚来源
type TriggerSource string

const (
	// SourceManual 操作员手动回滚
	SourceManual TriggerSource = "manual"

	// SourceAutomatic 监控触发器自动回滚
	SourceAutomatic TriggerSource = "automatic"

	// SourceCircuitBreaker 熔断器紧急回滚
	SourceCircuitBreaker TriggerSource = "circuit_breaker"
)

// Strategy 回滚策略
type Strategy string

const (
	// StrategyImmediate 立即切零流量
	StrategyImmediate Strategy = "immediate"

	// StrategyGradual 分级降流量：沿阶段档位逐步降到 0 再摘除补丁；
	// 紧急回滚（熔断、全局回滚）无视此声明立即切零
	StrategyGradual Strategy = "gradual"
)

// Record 回滚审计记录（不可变，无论回滚成败都产生）
type Record struct {
	ID           string        `json:"id"`
	DeploymentID string        `json:"deployment_id"`
	Route        string        `json:"route"`
	Source       TriggerSource `json:"source"`
	Strategy     Strategy      `json:"strategy"`
	Reason       string        `json:"reason"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}
