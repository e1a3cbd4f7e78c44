// Package handler 提供 HTTP 请求处理器
// 本文件处理通用代理外呼请求
package handler

import (
	"encoding/json"

	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/infrastructure/n8n"

	"github.com/gin-gonic/gin"
)

// ProxyHandler 代理外呼处理器
// 客户端把目标 webhook 与负载交给服务端转发，避免浏览器跨域直连工作流
type ProxyHandler struct {
	n8nClient *n8n.Client
}

// NewProxyHandler 创建代理处理器实例
func NewProxyHandler(n8nClient *n8n.Client) *ProxyHandler {
	return &ProxyHandler{n8nClient: n8nClient}
}

// Forward 透传负载到指定 webhook
// POST /api/n8n/proxy
// 工作流的原始响应作为 data 原样返回，解析不了 JSON 时按字符串返回
func (h *ProxyHandler) Forward(c *gin.Context) {
	var req request.ProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	raw, err := h.n8nClient.Dispatch(c.Request.Context(), req.WebhookUrl, req.Payload)
	if err != nil {
		HandleError(c, err)
		return
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		HandleSuccess(c, string(raw))
		return
	}
	HandleSuccess(c, parsed)
}
