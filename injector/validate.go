package injector

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
)

// forbiddenConstructs 禁用构造黑名单
// 注意：这是 best-effort 扫描，不是沙箱。补丁在交付前应已通过
// 外部校验方的完整静态检查，这里只做最小防御性复查
var forbiddenConstructs = []string{
	"eval(",          // 动态求值
	"Function(",      // 动态构造可调用体
	"os/exec",        // 子进程
	"exec.Command",   // 子进程
	"syscall.",       // 系统调用
	"os.Exit",        // 进程退出
	"process.exit",   // 进程退出（跨语言清单）
	"child_process",  // 子进程（跨语言清单）
	"unsafe.",        // 越过类型系统
	"ioutil.WriteFile",
	"os.Remove",
}

// ScanSource 扫描补丁源码中的禁用构造
// 返回命中的构造名，未命中返回空串
func ScanSource(source string) string {
	for _, construct := range forbiddenConstructs {
		if strings.Contains(source, construct) {
			return construct
		}
	}
	return ""
}

// patchFuncType PatchFunc 的反射类型（用于形状校验）
var patchFuncType = reflect.TypeOf(PatchFunc(nil))

// ValidateCallable 校验可调用体形状
// 必须是 func(*gin.Context, func()) —— 即 (请求+响应, 续延) 二参形状
// 参数个数或类型不符时返回 ErrValidation
func ValidateCallable(callable interface{}) (PatchFunc, error) {
	if callable == nil {
		return nil, ErrValidation.WithMessagef("callable is nil")
	}

	// 已是标准形状，直接使用
	switch fn := callable.(type) {
	case PatchFunc:
		return fn, nil
	case func(*gin.Context, func()):
		return PatchFunc(fn), nil
	}

	t := reflect.TypeOf(callable)
	if t.Kind() != reflect.Func {
		return nil, ErrValidation.WithMessagef("callable must be a function, got %s", t.Kind())
	}
	if t.NumIn() != patchFuncType.NumIn() {
		return nil, ErrValidation.WithMessagef(
			"callable arity mismatch: want %d parameters (context, continuation), got %d",
			patchFuncType.NumIn(), t.NumIn())
	}
	return nil, ErrValidation.WithMessagef("callable has incompatible signature %s", t.String())
}
