package datalogging

import (
	"sync"
)

// Registry 连接级路由器注册表
//
// 由顶层协调者持有并显式传递给需要分发的调用方，
// 取代全局可变的处理器单例。会话 ID 只在单个连接内唯一，
// 多设备部署必须经连接 ID 限定。
type Registry struct {
	mu      sync.RWMutex
	routers map[string]*Router
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		routers: make(map[string]*Router),
	}
}

// Register 注册某连接的路由器（重复注册覆盖）
func (r *Registry) Register(connID string, router *Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routers[connID] = router
}

// Unregister 注销某连接的路由器
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routers, connID)
}

// Get 查找某连接的路由器
func (r *Registry) Get(connID string) (*Router, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	router, ok := r.routers[connID]
	return router, ok
}

// List 返回当前注册的连接 ID
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.routers))
	for id := range r.routers {
		ids = append(ids, id)
	}
	return ids
}
