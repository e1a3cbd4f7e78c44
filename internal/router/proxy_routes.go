// Package router 提供 HTTP 路由注册
// 本文件定义代理外呼路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterProxyRoutes 注册代理外呼路由（需要认证）
func (rt *Router) RegisterProxyRoutes(rg *gin.RouterGroup) {
	rg.POST("/n8n/proxy", rt.handlers.Proxy.Forward) // 透传任意负载到指定 webhook
}
