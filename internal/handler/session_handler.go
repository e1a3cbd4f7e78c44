// Package handler 提供 HTTP 请求处理器
// 本文件处理会话相关的 API 请求
package handler

import (
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/service"
	"nevermiss_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	chatService   service.ChatService
	routerService service.WebhookRouterService
}

// NewSessionHandler 创建会话处理器实例
func NewSessionHandler(chatService service.ChatService, routerService service.WebhookRouterService) *SessionHandler {
	return &SessionHandler{
		chatService:   chatService,
		routerService: routerService,
	}
}

// GetSessionList 获取用户会话列表
// GET /api/session/list?userId=xxx
// 按最近活跃倒序返回
func (h *SessionHandler) GetSessionList(c *gin.Context) {
	userId := c.Query("userId")
	if userId == "" {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "userId 不能为空"))
		return
	}
	rsp, err := h.chatService.GetSessionList(userId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// OpenSession 打开会话，拉取全部消息
// POST /api/session/open
// 请求体: request.OpenSessionRequest
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req request.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.chatService.GetMessageList(req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// DeleteSession 删除会话及其全部消息
// POST /api/session/delete
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	var req request.DeleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.chatService.DeleteSession(c.Request.Context(), req); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// BindWebhook 为会话显式绑定 webhook
// POST /api/session/bind-webhook
// 后续发送消息时优先使用该绑定
func (h *SessionHandler) BindWebhook(c *gin.Context) {
	var req request.BindWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.routerService.Bind(c.Request.Context(), req.SessionId, req.WebhookUrl); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
