package rollback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

// snapshotSeq 依次返回预设快照序列（超出后重复最后一个）
func snapshotSeq(snaps ...metrics.Snapshot) SnapshotFunc {
	var idx int32
	return func() metrics.Snapshot {
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(snaps) {
			i = len(snaps) - 1
		}
		return snaps[i]
	}
}

func TestMonitor_CriticalTriggersImmediately(t *testing.T) {
	sched := scheduler.NewManual()
	defer sched.Close()

	var rollbacks atomic.Int32
	var gotReason atomic.Value
	m := NewMonitor("dep-1", MonitorConfig{Interval: time.Second}, sched,
		snapshotSeq(snap(0.4, 0.6, 100)),
		func(ctx context.Context, source TriggerSource, reason string) error {
			rollbacks.Add(1)
			gotReason.Store(reason)
			assert.Equal(t, SourceAutomatic, source)
			return nil
		})
	require.NoError(t, m.Start())

	// 单次观测错误率 0.6 即触发，无需 3 次累计
	sched.Tick()

	assert.Equal(t, int32(1), rollbacks.Load())
	assert.True(t, m.Fired())
	assert.Contains(t, gotReason.Load().(string), "critical")

	// 触发后监控自行停止，后续 Tick 不再回滚
	sched.TickN(3)
	assert.Equal(t, int32(1), rollbacks.Load())
}

func TestMonitor_SustainedTriggersOnThirdPoll(t *testing.T) {
	sched := scheduler.NewManual()
	defer sched.Close()

	bad := snap(0.7, 0.3, 100)
	var rollbacks atomic.Int32
	m := NewMonitor("dep-2", MonitorConfig{
		Interval: time.Second,
		Triggers: []Trigger{{Metric: MetricErrorRate, Threshold: 0.05}},
	}, sched,
		snapshotSeq(bad, bad, bad),
		func(ctx context.Context, source TriggerSource, reason string) error {
			rollbacks.Add(1)
			return nil
		})
	require.NoError(t, m.Start())

	sched.Tick()
	assert.Equal(t, int32(0), rollbacks.Load())
	sched.Tick()
	assert.Equal(t, int32(0), rollbacks.Load())
	// 第 3 次违规后的一个监控周期内触发
	sched.Tick()
	assert.Equal(t, int32(1), rollbacks.Load())
}

func TestMonitor_HealthyNeverFires(t *testing.T) {
	sched := scheduler.NewManual()
	defer sched.Close()

	var rollbacks atomic.Int32
	m := NewMonitor("dep-3", MonitorConfig{
		Interval: time.Second,
		Triggers: []Trigger{{Metric: MetricErrorRate, Threshold: 0.05}},
	}, sched,
		snapshotSeq(snap(0.99, 0.01, 100)),
		func(ctx context.Context, source TriggerSource, reason string) error {
			rollbacks.Add(1)
			return nil
		})
	require.NoError(t, m.Start())

	sched.TickN(10)
	assert.Equal(t, int32(0), rollbacks.Load())
	assert.False(t, m.Fired())
}

func TestMonitor_RollbackErrorDoesNotRetry(t *testing.T) {
	sched := scheduler.NewManual()
	defer sched.Close()

	var rollbacks atomic.Int32
	m := NewMonitor("dep-4", MonitorConfig{Interval: time.Second}, sched,
		snapshotSeq(snap(0.2, 0.8, 100)),
		func(ctx context.Context, source TriggerSource, reason string) error {
			rollbacks.Add(1)
			return assert.AnError
		})
	require.NoError(t, m.Start())

	sched.TickN(3)
	// 回滚失败只记录，不重试（执行侧负责把部署标记为失败）
	assert.Equal(t, int32(1), rollbacks.Load())
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	sched := scheduler.NewManual()
	defer sched.Close()

	m := NewMonitor("dep-5", MonitorConfig{Interval: time.Second}, sched,
		snapshotSeq(snap(1, 0, 100)),
		func(ctx context.Context, source TriggerSource, reason string) error { return nil })

	require.NoError(t, m.Start())
	require.NoError(t, m.Start())
	assert.Equal(t, 1, sched.TaskCount())

	m.Stop()
	m.Stop()
	assert.Equal(t, 0, sched.TaskCount())
}
