package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// gocronScheduler 基于 gocron 的生产调度器
type gocronScheduler struct {
	inner  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	mu     sync.Mutex
}

// Option 调度器选项
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock 注入时钟（测试中配合 clockwork.NewFakeClock 使用）
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// New 创建 gocron 调度器
func New(opts ...Option) (Scheduler, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var gopts []gocron.SchedulerOption
	if o.clock != nil {
		gopts = append(gopts, gocron.WithClock(o.clock))
	}

	inner, err := gocron.NewScheduler(gopts...)
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &gocronScheduler{
		inner:  inner,
		ctx:    ctx,
		cancel: cancel,
	}
	inner.Start()
	return s, nil
}

// Every 注册周期任务
func (s *gocronScheduler) Every(interval time.Duration, name string, fn func(ctx context.Context)) (Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("scheduler is closed")
	}

	job, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { fn(s.ctx) }),
		gocron.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("register job %q failed: %w", name, err)
	}

	return &gocronTask{scheduler: s, id: job.ID()}, nil
}

// Close 关闭调度器（幂等）
func (s *gocronScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return s.inner.Shutdown()
}

// gocronTask gocron 任务句柄
type gocronTask struct {
	scheduler *gocronScheduler
	id        uuid.UUID
	once      sync.Once
}

// Cancel 取消任务（幂等）
func (t *gocronTask) Cancel() {
	t.once.Do(func() {
		// RemoveJob 对已关闭的调度器返回错误，此处静默忽略
		_ = t.scheduler.inner.RemoveJob(t.id)
	})
}
