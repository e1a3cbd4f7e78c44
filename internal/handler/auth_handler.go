// Package handler 提供 HTTP 请求处理器
// 本文件处理 Google OAuth 令牌相关的 API 请求
package handler

import (
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/service"
	"nevermiss_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// AuthHandler 令牌处理器
type AuthHandler struct {
	tokenService service.TokenService
}

// NewAuthHandler 创建令牌处理器实例
func NewAuthHandler(tokenService service.TokenService) *AuthHandler {
	return &AuthHandler{tokenService: tokenService}
}

// StoreToken 登录成功后提交 Google 令牌
// POST /api/auth/store-token
// 请求体: request.StoreTokenRequest
// 响应: respond.StoreTokenRespond（应用 JWT + 过期时间）
func (h *AuthHandler) StoreToken(c *gin.Context) {
	var req request.StoreTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.tokenService.StoreToken(req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// ValidateToken 校验令牌有效性（必要时静默刷新）
// POST /api/auth/validate-token
// 令牌不可恢复时返回 valid=false 而不是错误，前端据此引导重新登录
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	var req request.ValidateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.tokenService.ValidateToken(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// RefreshToken 强制刷新 Google access token
// POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req request.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.tokenService.RefreshToken(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// GetToken 取用当前有效的 access token
// GET /api/auth/get-token/:userId
func (h *AuthHandler) GetToken(c *gin.Context) {
	userId := c.Param("userId")
	if userId == "" {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "userId 不能为空"))
		return
	}
	rsp, err := h.tokenService.GetToken(c.Request.Context(), userId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// Logout 登出
// POST /api/auth/logout
// 默认软登出只清 access token，hard=true 时清空全部令牌
func (h *AuthHandler) Logout(c *gin.Context) {
	var req request.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	var err error
	if req.Hard {
		err = h.tokenService.ClearTokens(req.UserId)
	} else {
		err = h.tokenService.ClearSession(req.UserId)
	}
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
