// Package api 提供部署器的 HTTP 管理面
//
// 只读查询 + 两个操作端点（手动回滚、紧急全量回滚）。
// 补丁挂载不走 HTTP：可调用体必须是编译产物，由部署方进程内交付
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KOMKZ/go-yogan-canary/errcode"
)

// Response 统一响应格式
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// okJSON 成功响应
func okJSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// errJSON 错误响应
// 分层错误携带自己的 HTTP 状态码与业务码，其余错误一律 500
func errJSON(c *gin.Context, err error) {
	var layered *errcode.LayeredError
	if errors.As(err, &layered) {
		c.JSON(layered.HTTPStatus(), Response{
			Code: layered.Code(),
			Msg:  layered.Message(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, Response{
		Code: http.StatusInternalServerError,
		Msg:  err.Error(),
	})
}

// badRequestJSON 400 错误响应
func badRequestJSON(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Code: http.StatusBadRequest,
		Msg:  msg,
	})
}
