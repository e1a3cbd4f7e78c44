// Package router 提供 HTTP 路由注册
// 本文件定义通知中心相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterNotificationRoutes 注册通知相关路由（需要认证）
func (rt *Router) RegisterNotificationRoutes(rg *gin.RouterGroup) {
	notifyGroup := rg.Group("/notifications")
	{
		notifyGroup.GET("/list", rt.handlers.Notification.List)           // 活跃 + 历史通知
		notifyGroup.POST("/mark-read", rt.handlers.Notification.MarkRead) // 标记已读
		notifyGroup.POST("/dismiss", rt.handlers.Notification.Dismiss)    // 移出活跃列表
		notifyGroup.POST("/clear-history", rt.handlers.Notification.ClearHistory)
		notifyGroup.POST("/click", rt.handlers.Notification.Click)        // 通知点击跳转
	}
}
