// Package router 提供 HTTP 路由注册
// 本文件定义令牌相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes 注册令牌相关路由（公开，登录流程调用）
func (rt *Router) RegisterAuthRoutes(rg *gin.RouterGroup) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/store-token", rt.handlers.Auth.StoreToken)       // 登录后令牌落库
		authGroup.POST("/validate-token", rt.handlers.Auth.ValidateToken) // 校验 + 静默刷新
		authGroup.POST("/refresh-token", rt.handlers.Auth.RefreshToken)   // 强制刷新
		authGroup.GET("/get-token/:userId", rt.handlers.Auth.GetToken)    // 取用有效 access token
		authGroup.POST("/logout", rt.handlers.Auth.Logout)                // 登出清空令牌
	}
}
