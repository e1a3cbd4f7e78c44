// Package handler 提供 HTTP 请求处理器
// 本文件处理通知中心相关的 API 请求
package handler

import (
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/service"
	"nevermiss_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知处理器
type NotificationHandler struct {
	notifyService service.NotifyService
}

// NewNotificationHandler 创建通知处理器实例
func NewNotificationHandler(notifyService service.NotifyService) *NotificationHandler {
	return &NotificationHandler{notifyService: notifyService}
}

// List 拉取通知列表（活跃 + 历史）
// GET /api/notifications/list?userId=xxx
func (h *NotificationHandler) List(c *gin.Context) {
	userId := c.Query("userId")
	if userId == "" {
		userId = c.GetString("user_id")
	}
	if userId == "" {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "userId 不能为空"))
		return
	}
	rsp, err := h.notifyService.List(userId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// MarkRead 标记通知已读
// POST /api/notifications/mark-read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req request.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.notifyService.MarkRead(req); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Dismiss 把通知从活跃列表移除（历史保留）
// POST /api/notifications/dismiss
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	var req request.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.notifyService.Dismiss(req.NotifyId); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// ClearHistory 清空当前用户的历史通知
// POST /api/notifications/clear-history
func (h *NotificationHandler) ClearHistory(c *gin.Context) {
	userId := c.GetString("user_id")
	if userId == "" {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "userId 不能为空"))
		return
	}
	if err := h.notifyService.ClearHistory(c.Request.Context(), userId); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Click 处理通知点击，返回前端应跳转的地址
// POST /api/notifications/click
// 文件处理完成类通知会把批次 webhook 暂存给用户的下一个新会话
func (h *NotificationHandler) Click(c *gin.Context) {
	var req request.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId := c.GetString("user_id")
	redirect, err := h.notifyService.ResolveRedirect(c.Request.Context(), userId, req.NotifyId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"redirectUrl": redirect})
}
