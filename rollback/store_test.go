package rollback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(i int) Record {
	return Record{
		ID:           fmt.Sprintf("rb-%d", i),
		DeploymentID: fmt.Sprintf("dep-%d", i),
		Route:        "/api/orders",
		Source:       SourceAutomatic,
		Strategy:     StrategyImmediate,
		Reason:       "error rate too high",
		StartedAt:    time.Unix(int64(1700000000+i), 0).UTC(),
		FinishedAt:   time.Unix(int64(1700000001+i), 0).UTC(),
		Success:      true,
	}
}

func TestMemoryHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("倒序返回最近记录", func(t *testing.T) {
		h := NewMemoryHistory(10)
		for i := 0; i < 5; i++ {
			require.NoError(t, h.Add(ctx, testRecord(i)))
		}

		records, err := h.List(ctx, 3)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "rb-4", records[0].ID)
		assert.Equal(t, "rb-2", records[2].ID)
	})

	t.Run("超出上限淘汰最旧记录", func(t *testing.T) {
		h := NewMemoryHistory(3)
		for i := 0; i < 5; i++ {
			require.NoError(t, h.Add(ctx, testRecord(i)))
		}

		records, err := h.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "rb-4", records[0].ID)
		assert.Equal(t, "rb-2", records[2].ID)
	})

	t.Run("空历史返回空切片", func(t *testing.T) {
		h := NewMemoryHistory(0)
		records, err := h.List(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestRedisHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()

	t.Run("写入读取往返", func(t *testing.T) {
		h := NewRedisHistory(client, "test", 10)
		for i := 0; i < 5; i++ {
			require.NoError(t, h.Add(ctx, testRecord(i)))
		}

		records, err := h.List(ctx, 3)
		require.NoError(t, err)
		require.Len(t, records, 3)
		// LPUSH 语义：最新的在最前
		assert.Equal(t, "rb-4", records[0].ID)
		assert.Equal(t, SourceAutomatic, records[0].Source)
		assert.Equal(t, StrategyImmediate, records[0].Strategy)
	})

	t.Run("上限裁剪", func(t *testing.T) {
		mr.FlushAll()
		h := NewRedisHistory(client, "test", 3)
		for i := 0; i < 6; i++ {
			require.NoError(t, h.Add(ctx, testRecord(i)))
		}

		records, err := h.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "rb-5", records[0].ID)
	})

	t.Run("脏数据被跳过", func(t *testing.T) {
		mr.FlushAll()
		h := NewRedisHistory(client, "test", 10)
		require.NoError(t, h.Add(ctx, testRecord(1)))
		require.NoError(t, client.LPush(ctx, "test:rollback:history", "not-json").Err())

		records, err := h.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "rb-1", records[0].ID)
	})
}
