package canary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterSplit(t *testing.T) {
	r := NewRouter(nil)

	t.Run("未登记路由不注入", func(t *testing.T) {
		assert.False(t, r.ShouldInject("/api/unknown"))
		assert.Equal(t, 0, r.Split("/api/unknown"))
	})

	t.Run("0 与 100 是确定性的", func(t *testing.T) {
		r.SetSplit("/api/zero", 0)
		r.SetSplit("/api/full", 100)
		for i := 0; i < 50; i++ {
			assert.False(t, r.ShouldInject("/api/zero"))
			assert.True(t, r.ShouldInject("/api/full"))
		}
	})

	t.Run("越界值收敛", func(t *testing.T) {
		r.SetSplit("/api/a", -5)
		assert.Equal(t, 0, r.Split("/api/a"))
		r.SetSplit("/api/a", 150)
		assert.Equal(t, 100, r.Split("/api/a"))
	})

	t.Run("移除后透传", func(t *testing.T) {
		r.SetSplit("/api/b", 100)
		assert.True(t, r.ShouldInject("/api/b"))
		r.Remove("/api/b")
		assert.False(t, r.ShouldInject("/api/b"))
	})
}

func TestRouterBernoulliApproximation(t *testing.T) {
	r := NewRouter(nil)
	r.SetSplit("/api/orders", 30)

	hits := 0
	const total = 10000
	for i := 0; i < total; i++ {
		if r.ShouldInject("/api/orders") {
			hits++
		}
	}
	// 30% ± 5 个百分点，万次采样下散度远小于此
	assert.InDelta(t, 0.30, float64(hits)/float64(total), 0.05)
}

func TestRouterCustomSplitter(t *testing.T) {
	// 会话粘滞等策略可整体替换切分器
	always := func(route string, pct int) bool { return pct > 0 }
	r := NewRouter(always)
	r.SetSplit("/api/orders", 1)

	for i := 0; i < 20; i++ {
		assert.True(t, r.ShouldInject("/api/orders"))
	}
}
