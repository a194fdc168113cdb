package injector

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/testutil"
)

// TestIngestionMiddleware 每个请求产生一个样本，无论是否走补丁
func TestIngestionMiddleware(t *testing.T) {
	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	require.NoError(t, err)
	collector.StartCollection("/api/orders")

	engine := gin.New()
	engine.Use(IngestionMiddleware(collector))
	engine.GET("/api/orders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	engine.GET("/api/fail", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	for i := 0; i < 6; i++ {
		testutil.NewRequest(http.MethodGet, "/api/orders").Do(engine)
	}
	// 未采集的路由：样本被 Collector 丢弃，不报错
	testutil.NewRequest(http.MethodGet, "/api/fail").Do(engine)

	snap := collector.GetSnapshot("/api/orders", time.Minute)
	assert.Equal(t, 6, snap.SampleSize)
	assert.Equal(t, 1.0, snap.SuccessRate)
}

// TestIngestionMiddleware_ErrorClass 4xx/5xx 归为错误样本
func TestIngestionMiddleware_ErrorClass(t *testing.T) {
	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	require.NoError(t, err)
	collector.StartCollection("/api/orders")

	engine := gin.New()
	engine.Use(IngestionMiddleware(collector))
	engine.GET("/api/orders", func(c *gin.Context) {
		if c.Query("fail") == "1" {
			c.Status(http.StatusBadGateway)
			return
		}
		c.Status(http.StatusOK)
	})

	for i := 0; i < 8; i++ {
		testutil.NewRequest(http.MethodGet, "/api/orders").Do(engine)
	}
	for i := 0; i < 2; i++ {
		testutil.NewRequest(http.MethodGet, "/api/orders").WithQuery("fail", "1").Do(engine)
	}

	snap := collector.GetSnapshot("/api/orders", time.Minute)
	assert.Equal(t, 10, snap.SampleSize)
	assert.InDelta(t, 0.2, snap.ErrorRate, 1e-9)
}
