package injector

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-canary/errcode"
)

// 注入器模块错误码（模块码 31）
var (
	// ErrValidation 补丁校验失败（形状错误、清单缺字段），补丁不会进入 active 状态
	ErrValidation = errcode.Register(errcode.New(
		31, 1, "injector", "error.injector.validation",
		"patch validation failed", http.StatusBadRequest))

	// ErrForbiddenConstruct 补丁源码命中禁用构造（best-effort 黑名单，非沙箱）
	ErrForbiddenConstruct = errcode.Register(errcode.New(
		31, 2, "injector", "error.injector.forbidden_construct",
		"patch source contains forbidden construct", http.StatusBadRequest))

	// ErrCapacity 活跃补丁数达到并发上限，调用方应稍后重试或先摘除其他补丁
	ErrCapacity = errcode.Register(errcode.New(
		31, 3, "injector", "error.injector.capacity",
		"active patch capacity reached", http.StatusTooManyRequests))

	// ErrInjectionNotFound 注入记录不存在
	ErrInjectionNotFound = errcode.Register(errcode.New(
		31, 4, "injector", "error.injector.not_found",
		"injection not found", http.StatusNotFound))

	// ErrRouteOccupied 同一 (路由, 匹配条件) 已存在活跃注入
	ErrRouteOccupied = errcode.Register(errcode.New(
		31, 5, "injector", "error.injector.route_occupied",
		"route already has an active injection", http.StatusConflict))
)
