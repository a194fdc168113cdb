package canary

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType 部署事件类型
type EventType string

const (
	// EventDeploymentStarted 部署已启动（补丁挂载、首阶段切分）
	EventDeploymentStarted EventType = "deployment_started"

	// EventStageAdvanced 阶段推进（流量百分比上调）
	EventStageAdvanced EventType = "stage_advanced"

	// EventDeploymentCompleted 部署成功，补丁承接全量流量
	EventDeploymentCompleted EventType = "deployment_completed"

	// EventRollbackStarted 回滚开始
	EventRollbackStarted EventType = "rollback_started"

	// EventRollbackCompleted 回滚结束，部署进入 Failed 终态
	EventRollbackCompleted EventType = "rollback_completed"
)

// Event 部署事件（不可变）
type Event struct {
	Type         EventType `json:"type"`
	DeploymentID string    `json:"deployment_id"`
	Route        string    `json:"route"`
	State        State     `json:"state"`
	TrafficPct   int       `json:"traffic_pct"`
	StageIndex   int       `json:"stage_index"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// EventListener 事件监听者
type EventListener func(Event)

// SubscriptionID 订阅标识
type SubscriptionID string

// subscription 订阅信息
type subscription struct {
	listener EventListener
	filters  map[EventType]bool
}

// EventBus 部署事件总线
//
// 发布方永不阻塞：缓冲区满时丢弃事件，监听者 panic 被吞掉，
// 部署状态机的推进绝不因观察者失败而停顿
type EventBus struct {
	listeners map[SubscriptionID]*subscription
	buffer    chan Event
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
}

// NewEventBus 创建事件总线并启动分发协程
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &EventBus{
		listeners: make(map[SubscriptionID]*subscription),
		buffer:    make(chan Event, bufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	bus.wg.Add(1)
	go bus.dispatch()
	return bus
}

// Subscribe 订阅事件，filters 为空表示订阅全部类型
func (eb *EventBus) Subscribe(listener EventListener, filters ...EventType) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := SubscriptionID(uuid.New().String())
	filterMap := make(map[EventType]bool, len(filters))
	for _, f := range filters {
		filterMap[f] = true
	}
	eb.listeners[id] = &subscription{listener: listener, filters: filterMap}
	return id
}

// Unsubscribe 取消订阅
func (eb *EventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.listeners, id)
}

// Publish 发布事件（非阻塞，缓冲区满时丢弃）
func (eb *EventBus) Publish(event Event) {
	if eb.closed.Load() {
		return
	}
	select {
	case eb.buffer <- event:
	case <-eb.ctx.Done():
	default:
		// 缓冲区满，丢弃
	}
}

// Close 关闭总线，等待已入队事件分发完毕
func (eb *EventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}
	eb.cancel()
	eb.wg.Wait()
	close(eb.buffer)
}

// dispatch 分发协程
func (eb *EventBus) dispatch() {
	defer eb.wg.Done()
	for {
		select {
		case event, ok := <-eb.buffer:
			if !ok {
				return
			}
			eb.notify(event)
		case <-eb.ctx.Done():
			// 排空残留事件后退出
			for {
				select {
				case event, ok := <-eb.buffer:
					if !ok {
						return
					}
					eb.notify(event)
				default:
					return
				}
			}
		}
	}
}

// notify 通知匹配的监听者
func (eb *EventBus) notify(event Event) {
	eb.mu.RLock()
	subs := make([]*subscription, 0, len(eb.listeners))
	for _, sub := range eb.listeners {
		subs = append(subs, sub)
	}
	eb.mu.RUnlock()

	for _, sub := range subs {
		if len(sub.filters) > 0 && !sub.filters[event.Type] {
			continue
		}
		func(l EventListener) {
			defer func() {
				_ = recover() // 监听者 panic 不影响分发
			}()
			l(event)
		}(sub.listener)
	}
}
