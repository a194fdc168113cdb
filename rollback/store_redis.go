package rollback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisHistory Redis 历史存储（LPUSH + LTRIM 维持有界列表）
type redisHistory struct {
	client  redis.UniversalClient
	key     string
	maxSize int
}

// NewRedisHistory 创建 Redis 历史存储
// keyPrefix 为空时使用 "canary"；maxSize <= 0 时使用默认上限 1000
func NewRedisHistory(client redis.UniversalClient, keyPrefix string, maxSize int) History {
	if keyPrefix == "" {
		keyPrefix = "canary"
	}
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &redisHistory{
		client:  client,
		key:     keyPrefix + ":rollback:history",
		maxSize: maxSize,
	}
}

// Add 追加记录并裁剪到上限
func (h *redisHistory) Add(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal rollback record failed: %w", err)
	}

	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, h.key, data)
	pipe.LTrim(ctx, h.key, 0, int64(h.maxSize-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rollback record failed: %w", err)
	}
	return nil
}

// List 按时间倒序返回最近 limit 条（LPUSH 语义下列表头即最新）
func (h *redisHistory) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = h.maxSize
	}

	raw, err := h.client.LRange(ctx, h.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load rollback history failed: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			// 坏记录跳过，不让单条脏数据拖垮整个审计视图
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Close 客户端由调用方持有，这里不关闭
func (h *redisHistory) Close() error {
	return nil
}
