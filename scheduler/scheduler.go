// Package scheduler 提供可取消的周期任务抽象
//
// 设计理念：
//   - 监控轮询循环不直接依赖 time.Ticker，通过 Scheduler 调度
//   - 生产实现基于 gocron，测试实现（Manual）由测试代码手动驱动
//   - 任务取消即时生效，不等待下一个周期
package scheduler

import (
	"context"
	"time"
)

// Task 周期任务句柄
type Task interface {
	// Cancel 取消任务（幂等，取消后不再触发）
	Cancel()
}

// Scheduler 周期任务调度器
type Scheduler interface {
	// Every 注册周期任务，fn 每隔 interval 被调用一次
	// ctx 为调度器级别上下文，调度器关闭时取消
	Every(interval time.Duration, name string, fn func(ctx context.Context)) (Task, error)

	// Close 关闭调度器，取消所有任务（幂等）
	Close() error
}
