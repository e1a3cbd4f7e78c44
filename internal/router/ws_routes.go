// Package router 提供 HTTP 路由注册
// 本文件定义 WebSocket 相关的路由
package router

import (
	"nevermiss_server/internal/handler"
	"nevermiss_server/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterWebSocketRoutes 注册 WebSocket 路由
// 连接建立需要 JWT，之后的订阅切换在连接内完成
func (rt *Router) RegisterWebSocketRoutes(r *gin.Engine) {
	r.GET("/ws", middleware.JWTAuth(), handler.WsLoginHandler)
}
