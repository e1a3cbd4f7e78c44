// Package router 提供 HTTP 路由注册
// 本文件定义 n8n 工作流侧的回调路由（API Key 鉴权）
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterCallbackRoutes 注册工作流回调路由
// rg 已挂载 APIKeyAuth 中间件
func (rt *Router) RegisterCallbackRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhook/callback", rt.handlers.Callback.SaveAIReply) // AI 回复异步投递

	notifyGroup := rg.Group("/notifications")
	{
		notifyGroup.POST("/insert", rt.handlers.Callback.InsertNotification) // 工作流插入通知
		notifyGroup.POST("/update", rt.handlers.Callback.UpdateNotification) // 工作流推进通知状态
	}
}
