package injector

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-canary/metrics"
)

// Middleware 返回路由级 gin 中间件（补丁包装器）
//
// 每次请求的决策顺序：
//  1. 路由上无注入或已摘除（active=false）→ 透传
//  2. 请求不满足匹配条件 → 透传
//  3. 流量决策器判定走原 handler → 透传
//  4. 否则调用补丁，计时计数；panic 被捕获、计为错误并中止请求
//
// 摘除后的补丁保持在 handler 链中，仅在第 1 步短路，这是长期设计选择
func (m *manager) Middleware(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		in, ok := m.lookupRoute(route)
		if !ok || !in.active.Load() {
			c.Next()
			return
		}
		if !in.patch.Match.Matches(c) {
			c.Next()
			return
		}
		if m.decider != nil && !m.decider.ShouldInject(route) {
			c.Next()
			return
		}

		in.requestCount.Add(1)
		start := m.clock.Now()
		nextCalled := false

		defer func() {
			latency := m.clock.Now().Sub(start)
			if r := recover(); r != nil {
				// 补丁异常：计为错误并以失败形式传递，绝不吞掉
				in.errorCount.Add(1)
				err := fmt.Errorf("patch %s panicked: %v", in.patch.Name, r)
				_ = c.Error(err)
				m.logger.Error("patch invocation panicked",
					zap.String("injection_id", in.id),
					zap.String("patch", in.patch.Name),
					zap.Duration("latency", latency),
					zap.Any("panic", r))
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			if c.Writer.Status() >= http.StatusBadRequest {
				in.errorCount.Add(1)
			}
			m.logger.Debug("patch invoked",
				zap.String("injection_id", in.id),
				zap.Duration("latency", latency),
				zap.Int("status", c.Writer.Status()))
		}()

		in.getCallable()(c, func() {
			if !nextCalled {
				nextCalled = true
				c.Next()
			}
		})

		// 补丁自己写响应、不调 next 也是合法的；两者都没发生时补上透传
		if !nextCalled && !c.Writer.Written() && !c.IsAborted() {
			c.Next()
		}
	}
}

// IngestionMiddleware 指标采集中间件（宿主全局挂载）
//
// 对每个命中监控路由的请求记录一个样本，无论是否走了补丁。
// 未被采集的路由在 Collector 内直接丢弃，热路径开销为一次只读查找
func IngestionMiddleware(collector metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path // 未匹配路由（404 等）
		}

		start := time.Now()
		c.Next()

		status := metrics.StatusSuccess
		if c.Writer.Status() >= http.StatusBadRequest || len(c.Errors) > 0 {
			status = metrics.StatusError
		}
		collector.RecordSample(route, metrics.Sample{
			Status:    status,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		})
	}
}
