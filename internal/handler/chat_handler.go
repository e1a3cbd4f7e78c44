// Package handler 提供 HTTP 请求处理器
// 本文件处理聊天消息相关的 API 请求
package handler

import (
	"net/http"

	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建聊天处理器实例
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessage 发送聊天消息
// POST /api/chat/send
// 请求体: request.SendMessageRequest
// sessionId 为空时懒创建会话，响应中带回新会话的 sessionId 与标题；
// 工作流外呼失败时用户消息已持久化，响应携带错误码但消息不丢
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.chatService.SendMessage(c.Request.Context(), req)
	if err != nil {
		// 乐观持久化：部分失败时 rsp 仍携带会话与消息标识
		if rsp != nil {
			codeErr := toCodeError(err)
			c.JSON(http.StatusOK, gin.H{
				"code": codeErr.Code,
				"msg":  codeErr.Msg,
				"data": rsp,
			})
			return
		}
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}
