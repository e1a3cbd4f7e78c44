// Package router 提供 HTTP 路由注册
// 本文件定义聊天相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterChatRoutes 注册聊天相关路由（需要认证）
func (rt *Router) RegisterChatRoutes(rg *gin.RouterGroup) {
	chatGroup := rg.Group("/chat")
	{
		chatGroup.POST("/send", rt.handlers.Chat.SendMessage) // 发送消息
	}
}
