package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-canary/canary"
	"github.com/KOMKZ/go-yogan-canary/injector"
	"github.com/KOMKZ/go-yogan-canary/logger"
	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/rollback"
)

// defaultSnapshotWindow 指标查询的默认窗口
const defaultSnapshotWindow = time.Minute

// defaultHistoryLimit 回滚历史查询的默认条数
const defaultHistoryLimit = 50

// Handler 管理面处理器
type Handler struct {
	deployer  *canary.Deployer
	injector  injector.Injector
	collector metrics.Collector
	history   rollback.History
	logger    *logger.CtxZapLogger
}

// NewHandler 创建管理面处理器
func NewHandler(dep *canary.Deployer, inj injector.Injector,
	coll metrics.Collector, history rollback.History) *Handler {
	return &Handler{
		deployer:  dep,
		injector:  inj,
		collector: coll,
		history:   history,
		logger:    logger.GetLogger("api"),
	}
}

// Register 挂载管理面路由
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/canary")
	g.GET("/deployments", h.listDeployments)
	g.GET("/deployments/:id", h.getDeployment)
	g.GET("/deployments/:id/events", h.deploymentEvents)
	g.POST("/deployments/:id/rollback", h.rollbackDeployment)
	g.POST("/emergency-rollback", h.emergencyRollback)
	g.GET("/rollbacks", h.listRollbacks)
	g.GET("/injections", h.listInjections)
	g.GET("/injections/stats", h.injectionStats)
	g.GET("/metrics", h.routeSnapshot)
}

// listDeployments 部署列表（?active=true 时只返回非终态）
func (h *Handler) listDeployments(c *gin.Context) {
	if c.Query("active") == "true" {
		okJSON(c, h.deployer.ListActive())
		return
	}
	okJSON(c, h.deployer.List())
}

// getDeployment 单部署状态
func (h *Handler) getDeployment(c *gin.Context) {
	st, err := h.deployer.GetStatus(c.Param("id"))
	if err != nil {
		errJSON(c, err)
		return
	}
	okJSON(c, st)
}

// deploymentEvents 部署事件日志
func (h *Handler) deploymentEvents(c *gin.Context) {
	events, err := h.deployer.Events(c.Param("id"))
	if err != nil {
		errJSON(c, err)
		return
	}
	okJSON(c, events)
}

// rollbackDeployment 手动回滚
func (h *Handler) rollbackDeployment(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body 可为空，reason 缺省时由部署器补默认值
	_ = c.ShouldBindJSON(&req)

	id := c.Param("id")
	if err := h.deployer.CancelDeployment(c.Request.Context(), id, req.Reason); err != nil {
		errJSON(c, err)
		return
	}
	h.logger.WarnCtx(c.Request.Context(), "manual rollback via api",
		zap.String("deployment_id", id), zap.String("reason", req.Reason))
	okJSON(c, gin.H{"deployment_id": id})
}

// emergencyRollback 紧急回滚全部部署并停用所有补丁
func (h *Handler) emergencyRollback(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "emergency rollback via api"
	}

	if err := h.deployer.EmergencyRollbackAll(c.Request.Context(), req.Reason); err != nil {
		errJSON(c, err)
		return
	}
	h.logger.WarnCtx(c.Request.Context(), "emergency rollback via api",
		zap.String("reason", req.Reason))
	okJSON(c, gin.H{"rolled_back": true})
}

// listRollbacks 回滚历史（?limit=N，默认 50）
func (h *Handler) listRollbacks(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequestJSON(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		errJSON(c, err)
		return
	}
	okJSON(c, records)
}

// listInjections 全部注入快照
func (h *Handler) listInjections(c *gin.Context) {
	okJSON(c, h.injector.List())
}

// injectionStats 注入器聚合统计
func (h *Handler) injectionStats(c *gin.Context) {
	okJSON(c, h.injector.Stats())
}

// routeSnapshot 路由指标快照（?route=/api/x&window=60s）
func (h *Handler) routeSnapshot(c *gin.Context) {
	route := c.Query("route")
	if route == "" {
		badRequestJSON(c, "route query parameter is required")
		return
	}

	window := defaultSnapshotWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			badRequestJSON(c, "window must be a positive duration")
			return
		}
		window = parsed
	}

	okJSON(c, h.collector.GetSnapshot(route, window))
}
