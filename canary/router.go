package canary

import (
	"math/rand"
	"sync"
)

// SplitterFunc 流量切分决策：返回 true 表示本次请求路由到补丁
// 默认实现是按百分比的伯努利采样，可替换为一致性哈希等会话粘滞实现
type SplitterFunc func(route string, percentage int) bool

// bernoulliSplit 默认切分器：每个请求独立按百分比采样
func bernoulliSplit(_ string, percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	return rand.Intn(100) < percentage
}

// Router 按路由维护流量切分百分比，实现 injector.TrafficDecider
//
// 未登记的路由视为 0%（补丁透传），部署推进时由部署器调整百分比
type Router struct {
	mu       sync.RWMutex
	splits   map[string]int
	splitter SplitterFunc
}

// NewRouter 创建路由器
// splitter 为 nil 时使用默认的伯努利切分
func NewRouter(splitter SplitterFunc) *Router {
	if splitter == nil {
		splitter = bernoulliSplit
	}
	return &Router{
		splits:   make(map[string]int),
		splitter: splitter,
	}
}

// SetSplit 设置路由的流量百分比（越界值收敛到 [0,100]）
func (r *Router) SetSplit(route string, percentage int) {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	r.mu.Lock()
	r.splits[route] = percentage
	r.mu.Unlock()
}

// Remove 移除路由登记（此后该路由补丁透传）
func (r *Router) Remove(route string) {
	r.mu.Lock()
	delete(r.splits, route)
	r.mu.Unlock()
}

// Split 查询路由当前百分比
func (r *Router) Split(route string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.splits[route]
}

// ShouldInject 实现 injector.TrafficDecider（请求热路径）
func (r *Router) ShouldInject(route string) bool {
	r.mu.RLock()
	pct, ok := r.splits[route]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.splitter(route, pct)
}
