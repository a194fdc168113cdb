// Package injector 提供 handler 补丁的挂载、摘除与按请求计量
//
// 设计理念：
//   - 补丁由外部协作方（代码生成/校验）以已编译的 PatchFunc 形式交付，
//     本包绝不执行源码求值；Source 字段仅用于审计与禁用构造扫描
//   - 摘除是逻辑性的（active=false 时包装器直接透传），不从 gin 路由树
//     物理移除——gin 不支持运行时重建路由树，这是长期设计选择
//   - 每次调用无论成败都计时计数；补丁 panic 被捕获、计为错误并以
//     失败形式传递给后续 handler，绝不吞掉
package injector

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"
)

// PatchFunc 补丁的标准调用形状
// c 同时承载请求与响应，next 为继续执行原 handler 链的续延
type PatchFunc func(c *gin.Context, next func())

// MatchConditions 请求匹配条件（全部为空时匹配所有请求）
type MatchConditions struct {
	// Methods HTTP 方法白名单（空为不限制）
	Methods []string `json:"methods,omitempty" mapstructure:"methods"`

	// Paths 路径前缀白名单（空为不限制）
	Paths []string `json:"paths,omitempty" mapstructure:"paths"`

	// Headers 必须携带的请求头键值（空为不限制）
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// HandlerPatch 补丁清单（不可变值，由代码生成协作方创建）
type HandlerPatch struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	TargetRoute string          `json:"target_route"`
	Match       MatchConditions `json:"match"`
	Priority    int             `json:"priority"`

	// Source 补丁源码（仅审计与禁用构造扫描，绝不执行）
	Source string `json:"source,omitempty"`
}

// Validate 校验补丁清单
func (p HandlerPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.TargetRoute, validation.Required, validation.By(validateRoute)),
	)
}

// validateRoute 目标路由必须以 / 开头
func validateRoute(value interface{}) error {
	route, _ := value.(string)
	if !strings.HasPrefix(route, "/") {
		return validation.NewError("validation_route", "target route must start with /")
	}
	return nil
}

// Matches 判断请求是否满足匹配条件
func (m MatchConditions) Matches(c *gin.Context) bool {
	if len(m.Methods) > 0 {
		found := false
		for _, method := range m.Methods {
			if strings.EqualFold(method, c.Request.Method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(m.Paths) > 0 {
		found := false
		for _, prefix := range m.Paths {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for key, want := range m.Headers {
		if c.GetHeader(key) != want {
			return false
		}
	}
	return true
}
