package scheduler

import (
	"context"
	"sync"
	"time"
)

// Manual 手动驱动的调度器（测试用）
// 测试代码调用 Tick() 同步触发所有已注册任务一次，不依赖真实时间
type Manual struct {
	mu     sync.Mutex
	tasks  map[int]*manualTask
	nextID int
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewManual 创建手动调度器
func NewManual() *Manual {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manual{
		tasks:  make(map[int]*manualTask),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every 注册周期任务（interval 仅作记录，触发由 Tick 驱动）
func (m *Manual) Every(interval time.Duration, name string, fn func(ctx context.Context)) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	t := &manualTask{owner: m, id: id, name: name, interval: interval, fn: fn}
	m.tasks[id] = t
	return t, nil
}

// Tick 同步触发所有任务一次（按注册顺序不保证）
func (m *Manual) Tick() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	fns := make([]func(ctx context.Context), 0, len(m.tasks))
	for _, t := range m.tasks {
		fns = append(fns, t.fn)
	}
	ctx := m.ctx
	m.mu.Unlock()

	// 锁外执行，任务内可注册/取消其他任务
	for _, fn := range fns {
		fn(ctx)
	}
}

// TickN 连续触发 n 次
func (m *Manual) TickN(n int) {
	for i := 0; i < n; i++ {
		m.Tick()
	}
}

// TaskCount 当前注册的任务数
func (m *Manual) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Close 关闭调度器（幂等）
func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cancel()
	m.tasks = make(map[int]*manualTask)
	return nil
}

// manualTask 手动调度器任务句柄
type manualTask struct {
	owner    *Manual
	id       int
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
}

// Cancel 取消任务（幂等）
func (t *manualTask) Cancel() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	delete(t.owner.tasks, t.id)
}
