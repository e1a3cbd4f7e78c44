// Package router 提供 HTTP 路由注册
// 本文件定义文件摄取相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterIngestRoutes 注册文件摄取路由（需要认证）
func (rt *Router) RegisterIngestRoutes(rg *gin.RouterGroup) {
	ingestGroup := rg.Group("/ingest")
	{
		ingestGroup.POST("/upload", rt.handlers.Ingest.Upload) // 批量上传知识库文件
	}
}
