package canary

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-canary/errcode"
)

// 金丝雀部署模块错误码（模块码 30）
var (
	// ErrValidation 部署计划或补丁校验失败（同步返回给 Deploy 调用方）
	ErrValidation = errcode.Register(errcode.New(
		30, 1, "canary", "error.canary.validation",
		"deployment validation failed", http.StatusBadRequest))

	// ErrCapacity 并发部署数达到上限（同步返回给 Deploy 调用方）
	ErrCapacity = errcode.Register(errcode.New(
		30, 2, "canary", "error.canary.capacity",
		"concurrent deployment capacity reached", http.StatusTooManyRequests))

	// ErrDeploymentNotFound 部署不存在
	ErrDeploymentNotFound = errcode.Register(errcode.New(
		30, 3, "canary", "error.canary.not_found",
		"deployment not found", http.StatusNotFound))

	// ErrInvalidTransition 非法状态迁移（内部一致性错误）
	ErrInvalidTransition = errcode.Register(errcode.New(
		30, 4, "canary", "error.canary.invalid_transition",
		"invalid deployment state transition", http.StatusConflict))

	// ErrMonitoringTimeout 阶段监督超过安全时限，按失败阶段处理
	ErrMonitoringTimeout = errcode.Register(errcode.New(
		30, 5, "canary", "error.canary.monitoring_timeout",
		"stage monitoring exceeded safety timeout", http.StatusGatewayTimeout))

	// ErrClosed 部署器已关闭
	ErrClosed = errcode.Register(errcode.New(
		30, 6, "canary", "error.canary.closed",
		"deployer is closed", http.StatusServiceUnavailable))
)
