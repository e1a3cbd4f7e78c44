// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 连接相关的 API 请求
package handler

import (
	"net/http"

	"nevermiss_server/internal/service/realtime"
	"nevermiss_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WsLoginHandler WebSocket 登录（升级 HTTP 连接为 WebSocket）
// GET /ws?user_id=xxx
// JWT 中间件已注入 user_id，查询参数作为降级来源
// 升级成功后客户端通过 subscribe 动作订阅某个会话的实时回复
func WsLoginHandler(c *gin.Context) {
	userId := c.GetString("user_id")
	if userId == "" {
		userId = c.Query("user_id")
	}
	if userId == "" {
		zap.L().Error("userId获取失败")
		c.JSON(http.StatusOK, gin.H{
			"code": errorx.CodeInvalidParam,
			"msg":  "userId获取失败",
		})
		return
	}
	// 初始化 WebSocket 客户端连接
	realtime.NewClientInit(c, userId)
}
