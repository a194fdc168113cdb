package rollback

import (
	"context"
	"sync"
)

// memoryHistory 内存历史存储（有界，旧记录淘汰）
type memoryHistory struct {
	records []Record
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryHistory 创建内存历史存储
// maxSize <= 0 时使用默认上限 1000
func NewMemoryHistory(maxSize int) History {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &memoryHistory{
		records: make([]Record, 0, 64),
		maxSize: maxSize,
	}
}

// Add 追加记录（超出上限淘汰最旧的）
func (h *memoryHistory) Add(ctx context.Context, record Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
	if len(h.records) > h.maxSize {
		h.records = append(h.records[:0:0], h.records[len(h.records)-h.maxSize:]...)
	}
	return nil
}

// List 按时间倒序返回最近 limit 条
func (h *memoryHistory) List(ctx context.Context, limit int) ([]Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}
	out := make([]Record, 0, limit)
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}
	return out, nil
}

// Close 无资源可释放
func (h *memoryHistory) Close() error {
	return nil
}
