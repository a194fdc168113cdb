// Package canary 提供金丝雀部署状态机、流量路由与阶段监督
//
// 设计理念：
//   - 每个部署一把锁：阶段监督循环与回滚监控是并发写者，
//     所有状态迁移都在锁内由 CanTransition 守卫
//   - 状态单调向前，唯一的回退边是 Monitoring → RollingBack
//   - 流量百分比在 Deploying/Monitoring 期间只增不减，
//     只有回滚路径把它降为 0
package canary

// State 部署状态
type State int

const (
	// StatePlanning 计划构建中（Deploy 返回前的瞬态）
	StatePlanning State = iota

	// StateDeploying 补丁已挂载，首个阶段流量切分中
	StateDeploying

	// StateMonitoring 阶段监督中（后续阶段推进不离开此状态）
	StateMonitoring

	// StateCompleted 全部阶段健康通过，补丁承接全量流量
	StateCompleted

	// StateRollingBack 回滚执行中
	StateRollingBack

	// StateFailed 终态：已回滚或回滚尽力完成
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StatePlanning:
		return "Planning"
	case StateDeploying:
		return "Deploying"
	case StateMonitoring:
		return "Monitoring"
	case StateCompleted:
		return "Completed"
	case StateRollingBack:
		return "RollingBack"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal 是否为终态
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition 状态迁移守卫
// 合法边：Planning→Deploying→Monitoring→{Completed, RollingBack}，
// Deploying→RollingBack（紧急回滚可在首阶段切分期间到达），
// RollingBack→Failed
func (s State) CanTransition(to State) bool {
	switch s {
	case StatePlanning:
		return to == StateDeploying
	case StateDeploying:
		return to == StateMonitoring || to == StateRollingBack
	case StateMonitoring:
		return to == StateCompleted || to == StateRollingBack
	case StateRollingBack:
		return to == StateFailed
	default:
		return false
	}
}
