// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"nevermiss_server/internal/config"
	"nevermiss_server/internal/handler"
	"nevermiss_server/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器，持有 Handler 聚合
type Router struct {
	handlers *handler.Handlers
}

// NewRouter 创建路由管理器
func NewRouter(handlers *handler.Handlers) *Router {
	return &Router{handlers: handlers}
}

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
// 路由按鉴权方式分为三组：
//   - 公开组：令牌管理（登录前调用，无法携带 JWT）
//   - JWT 组：浏览器端业务接口
//   - API Key 组：n8n 工作流侧的机器端点
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// 公开路由（登录流程本身）
	rt.RegisterAuthRoutes(api)

	// JWT 鉴权路由（浏览器端）
	authed := api.Group("")
	authed.Use(middleware.JWTAuth())
	rt.RegisterChatRoutes(authed)         // 聊天路由
	rt.RegisterSessionRoutes(authed)      // 会话路由
	rt.RegisterNotificationRoutes(authed) // 通知路由
	rt.RegisterIngestRoutes(authed)       // 文件摄取路由
	rt.RegisterProxyRoutes(authed)        // 代理外呼路由

	// API Key 鉴权路由（工作流侧回调）
	machine := api.Group("/n8n")
	machine.Use(middleware.APIKeyAuth(config.GetConfig().N8NConfig.APIKey))
	rt.RegisterCallbackRoutes(machine)

	// WebSocket 路由
	rt.RegisterWebSocketRoutes(r)
}
