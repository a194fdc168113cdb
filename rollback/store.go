package rollback

import "context"

// History 回滚历史存储接口
//
// 两个实现：内存（默认）与 Redis（宿主多进程共享审计视图时使用）。
// 历史是有界审计日志，不承诺跨进程重启的持久性
type History interface {
	// Add 追加一条回滚记录
	Add(ctx context.Context, record Record) error

	// List 按时间倒序返回最近 limit 条记录（limit<=0 使用存储默认上限）
	List(ctx context.Context, limit int) ([]Record, error)

	// Close 释放资源（幂等）
	Close() error
}
