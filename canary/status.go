package canary

import (
	"sync"
	"time"

	"github.com/KOMKZ/go-yogan-canary/rollback"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

// Status 部署状态快照（对外只读）
type Status struct {
	ID                string    `json:"id"`
	Route             string    `json:"route"`
	PatchName         string    `json:"patch_name"`
	InjectionID       string    `json:"injection_id"`
	State             string    `json:"state"`
	StageIndex        int       `json:"stage_index"`
	TotalStages       int       `json:"total_stages"`
	TrafficPercentage int       `json:"traffic_percentage"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	FailureReason     string    `json:"failure_reason,omitempty"`
}

// deployment 部署运行时记录
//
// 并发写者：阶段监督轮询、回滚监控、熔断器、手动取消，
// 全部字段变更在 mu 内完成，状态迁移由 State.CanTransition 守卫
type deployment struct {
	mu sync.Mutex

	id          string
	route       string
	patchName   string
	injectionID string
	plan        Plan

	state      State
	stageIndex int
	trafficPct int

	startedAt      time.Time
	updatedAt      time.Time
	stageStartedAt time.Time
	failureReason  string

	baselineCaptured bool

	monitor   *rollback.Monitor
	stageTask scheduler.Task

	// events 有界事件日志（最旧的先淘汰）
	events    []Event
	eventsCap int
}

// transitionLocked 守卫迁移（调用方持有 mu）
func (d *deployment) transitionLocked(to State, now time.Time) error {
	if !d.state.CanTransition(to) {
		return ErrInvalidTransition.WithData("from", d.state.String()).WithData("to", to.String())
	}
	d.state = to
	d.updatedAt = now
	return nil
}

// setTrafficLocked 调整流量百分比（调用方持有 mu）
// 正常推进期间只增不减；回滚路径用 force 把流量降为 0
func (d *deployment) setTrafficLocked(pct int, force bool) {
	if !force && pct < d.trafficPct {
		return
	}
	d.trafficPct = pct
}

// appendEventLocked 追加事件到有界日志（调用方持有 mu）
func (d *deployment) appendEventLocked(ev Event) {
	d.events = append(d.events, ev)
	if over := len(d.events) - d.eventsCap; over > 0 {
		d.events = append(d.events[:0:0], d.events[over:]...)
	}
}

// statusLocked 状态快照（调用方持有 mu）
func (d *deployment) statusLocked() Status {
	return Status{
		ID:                d.id,
		Route:             d.route,
		PatchName:         d.patchName,
		InjectionID:       d.injectionID,
		State:             d.state.String(),
		StageIndex:        d.stageIndex,
		TotalStages:       len(d.plan.Stages),
		TrafficPercentage: d.trafficPct,
		StartedAt:         d.startedAt,
		UpdatedAt:         d.updatedAt,
		FailureReason:     d.failureReason,
	}
}

// status 状态快照
func (d *deployment) status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked()
}

// eventLog 事件日志副本
func (d *deployment) eventLog() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// currentState 当前状态
func (d *deployment) currentState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
