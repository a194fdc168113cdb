package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_TickDrivesTasks(t *testing.T) {
	m := NewManual()
	defer m.Close()

	var a, b atomic.Int32
	_, err := m.Every(time.Second, "a", func(ctx context.Context) { a.Add(1) })
	require.NoError(t, err)
	_, err = m.Every(time.Minute, "b", func(ctx context.Context) { b.Add(1) })
	require.NoError(t, err)

	// 间隔只作记录，触发完全由 Tick 驱动
	m.Tick()
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load())

	m.TickN(3)
	assert.Equal(t, int32(4), a.Load())
}

func TestManual_CancelInsideTick(t *testing.T) {
	m := NewManual()
	defer m.Close()

	var runs atomic.Int32
	var task Task
	task, err := m.Every(time.Second, "self-cancel", func(ctx context.Context) {
		runs.Add(1)
		task.Cancel()
	})
	require.NoError(t, err)

	// 任务可在执行中取消自己（锁外执行）
	m.Tick()
	m.TickN(3)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, 0, m.TaskCount())
}

func TestManual_CancelIdempotent(t *testing.T) {
	m := NewManual()
	defer m.Close()

	task, err := m.Every(time.Second, "x", func(ctx context.Context) {})
	require.NoError(t, err)
	require.Equal(t, 1, m.TaskCount())

	task.Cancel()
	task.Cancel()
	assert.Equal(t, 0, m.TaskCount())
}

func TestManual_CloseStopsTicks(t *testing.T) {
	m := NewManual()

	var runs atomic.Int32
	_, err := m.Every(time.Second, "x", func(ctx context.Context) { runs.Add(1) })
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Tick()
	assert.Equal(t, int32(0), runs.Load())
	assert.Equal(t, 0, m.TaskCount())
}

func TestGocron_RunsAndCancels(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	var runs atomic.Int32
	task, err := s.Every(10*time.Millisecond, "fast", func(ctx context.Context) {
		runs.Add(1)
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	task.Cancel()
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	// 取消后允许一次在途执行，不再增长
	assert.LessOrEqual(t, runs.Load(), after+1)
}

func TestGocron_RejectsBadInterval(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Every(0, "bad", func(ctx context.Context) {})
	assert.Error(t, err)
}

func TestGocron_EveryAfterClose(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Every(time.Second, "late", func(ctx context.Context) {})
	assert.Error(t, err)
	// Close 幂等
	assert.NoError(t, s.Close())
}
