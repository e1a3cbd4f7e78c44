// Package router 提供 HTTP 路由注册
// 本文件定义会话相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterSessionRoutes 注册会话相关路由（需要认证）
func (rt *Router) RegisterSessionRoutes(rg *gin.RouterGroup) {
	sessionGroup := rg.Group("/session")
	{
		sessionGroup.GET("/list", rt.handlers.Session.GetSessionList)           // 会话列表
		sessionGroup.POST("/open", rt.handlers.Session.OpenSession)             // 打开会话拉取消息
		sessionGroup.POST("/delete", rt.handlers.Session.DeleteSession)         // 删除会话
		sessionGroup.POST("/bind-webhook", rt.handlers.Session.BindWebhook)     // 显式绑定 webhook
	}
}
