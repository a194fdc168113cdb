package rollback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
)

type breakerFixture struct {
	breaker *CircuitBreaker
	sched   *scheduler.Manual
	clock   *clockwork.FakeClock
	trips   atomic.Int32
	route   atomic.Value
	snap    atomic.Value // metrics.Snapshot
}

func newBreakerFixture(t *testing.T, cfg BreakerConfig) *breakerFixture {
	t.Helper()
	f := &breakerFixture{
		sched: scheduler.NewManual(),
		clock: clockwork.NewFakeClock(),
	}
	f.snap.Store(metrics.Snapshot{})

	f.breaker = NewCircuitBreaker(cfg, f.sched,
		func() []string { return []string{"/api/orders"} },
		func(route string, window time.Duration) metrics.Snapshot {
			return f.snap.Load().(metrics.Snapshot)
		},
		func(ctx context.Context, route string, reason string) {
			f.trips.Add(1)
			f.route.Store(route)
		},
		WithBreakerClock(f.clock))
	t.Cleanup(func() {
		f.breaker.Stop()
		_ = f.sched.Close()
	})
	return f
}

func TestCircuitBreaker_Trip(t *testing.T) {
	f := newBreakerFixture(t, DefaultBreakerConfig())
	require.NoError(t, f.breaker.Start())

	// 健康流量不熔断
	f.snap.Store(metrics.Snapshot{ErrorRate: 0.01, SuccessRate: 0.99, SampleSize: 100})
	f.sched.TickN(3)
	assert.Equal(t, int32(0), f.trips.Load())
	assert.Equal(t, BreakerClosed, f.breaker.State("/api/orders"))

	// 错误率超过阈值且样本充足 → 熔断
	f.snap.Store(metrics.Snapshot{ErrorRate: 0.8, SuccessRate: 0.2, SampleSize: 100})
	f.sched.Tick()
	assert.Equal(t, int32(1), f.trips.Load())
	assert.Equal(t, "/api/orders", f.route.Load())
	assert.Equal(t, BreakerOpen, f.breaker.State("/api/orders"))
}

func TestCircuitBreaker_MinSampleGate(t *testing.T) {
	f := newBreakerFixture(t, DefaultBreakerConfig())
	require.NoError(t, f.breaker.Start())

	// 错误率 100% 但只有 3 个样本，低于门槛不熔断
	f.snap.Store(metrics.Snapshot{ErrorRate: 1.0, SampleSize: 3})
	f.sched.TickN(5)
	assert.Equal(t, int32(0), f.trips.Load())
}

func TestCircuitBreaker_CooldownSuppressesRetrip(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Cooldown = time.Minute
	f := newBreakerFixture(t, cfg)
	require.NoError(t, f.breaker.Start())

	f.snap.Store(metrics.Snapshot{ErrorRate: 0.9, SampleSize: 100})
	f.sched.Tick()
	require.Equal(t, int32(1), f.trips.Load())

	// 冷却期内重复轮询不再触发
	f.sched.TickN(5)
	assert.Equal(t, int32(1), f.trips.Load())

	// 冷却期过后状态回到 Closed，可再次熔断
	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, BreakerClosed, f.breaker.State("/api/orders"))
	f.sched.Tick()
	assert.Equal(t, int32(2), f.trips.Load())
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Enabled = false
	f := newBreakerFixture(t, cfg)

	require.NoError(t, f.breaker.Start())
	assert.Equal(t, 0, f.sched.TaskCount())
}

func TestCircuitBreaker_EmergencyPanicContained(t *testing.T) {
	sched := scheduler.NewManual()
	defer sched.Close()

	b := NewCircuitBreaker(DefaultBreakerConfig(), sched,
		func() []string { return []string{"/api/a"} },
		func(route string, window time.Duration) metrics.Snapshot {
			return metrics.Snapshot{ErrorRate: 0.9, SampleSize: 100}
		},
		func(ctx context.Context, route string, reason string) {
			panic("handler bug")
		})
	require.NoError(t, b.Start())

	// 熔断动作 panic 不能让轮询协程崩溃
	assert.NotPanics(t, func() { sched.Tick() })
	b.Stop()
}
