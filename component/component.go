// Package component 提供组件接口定义
// 这是最底层的包，不依赖任何业务包，避免循环依赖
package component

import "context"

// Component 组件接口（统一生命周期管理）
//
// 部署引擎的核心组件（指标采集器、注入器、金丝雀部署器）都实现此接口
// 组件生命周期：Init → Start → Stop
type Component interface {
	// Name 组件名称（唯一标识），用于依赖声明和组件查找
	Name() string

	// DependsOn 声明依赖的组件名称
	// 宿主应用根据依赖关系进行拓扑排序，确定初始化顺序
	//
	// 支持可选依赖：
	//   - 强制依赖：直接返回组件名，如 "metrics"
	//   - 可选依赖：使用 "optional:" 前缀，如 "optional:telemetry"
	DependsOn() []string

	// Init 初始化组件（创建资源，不启动后台任务）
	Init(ctx context.Context, loader ConfigLoader) error

	// Start 启动组件（启动监控循环、协程池等后台任务）
	Start(ctx context.Context) error

	// Stop 停止组件（释放资源，保证幂等，允许重复调用）
	Stop(ctx context.Context) error
}

// HealthChecker 健康检查接口
// 组件可选实现此接口，提供健康检查能力
type HealthChecker interface {
	// Check 执行健康检查，返回 nil 表示健康
	Check(ctx context.Context) error

	// Name 返回检查项名称（如 "metrics", "injector"）
	Name() string
}

// ConfigLoader 配置加载器接口（由 config 包实现）
// 组件通过它读取自己的配置段，不直接依赖具体配置实现
type ConfigLoader interface {
	// UnmarshalKey 将指定配置段反序列化到目标结构体
	UnmarshalKey(key string, target interface{}) error

	// IsSet 判断配置段是否存在
	IsSet(key string) bool
}
