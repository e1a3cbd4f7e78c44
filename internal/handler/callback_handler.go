// Package handler 提供 HTTP 请求处理器
// 本文件处理 n8n 工作流侧的回调请求（API Key 鉴权）
package handler

import (
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/service"

	"github.com/gin-gonic/gin"
)

// CallbackHandler 工作流回调处理器
// 工作流异步完成后通过这些接口把结果投递回服务端
type CallbackHandler struct {
	chatService   service.ChatService
	notifyService service.NotifyService
}

// NewCallbackHandler 创建回调处理器实例
func NewCallbackHandler(chatService service.ChatService, notifyService service.NotifyService) *CallbackHandler {
	return &CallbackHandler{
		chatService:   chatService,
		notifyService: notifyService,
	}
}

// SaveAIReply 工作流投递 AI 回复
// POST /api/n8n/webhook/callback
// 请求体: request.CallbackRequest
// 回复持久化后经实时通道推送给在线用户
func (h *CallbackHandler) SaveAIReply(c *gin.Context) {
	var req request.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.chatService.SaveAIReply(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// InsertNotification 工作流插入通知
// POST /api/n8n/notifications/insert
// dedupKey 非空时重复插入被忽略，响应 data 为空
func (h *CallbackHandler) InsertNotification(c *gin.Context) {
	var req request.InsertNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.notifyService.Insert(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// UpdateNotification 工作流推进通知状态
// POST /api/n8n/notifications/update
func (h *CallbackHandler) UpdateNotification(c *gin.Context) {
	var req request.UpdateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.notifyService.Update(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}
