// Package service 定义业务层接口
// 本文件定义所有 Service 接口，供 Handler 层调用
// 接口设计遵循依赖倒置原则，便于测试和解耦
package service

import (
	"context"

	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/dto/respond"
	"nevermiss_server/internal/infrastructure/n8n"
	"nevermiss_server/internal/service/token"
)

// TokenService 令牌业务接口
// 处理 Google OAuth 令牌的落库、校验、静默刷新与清除
type TokenService interface {
	// StoreToken 登录成功后令牌落库并签发应用 JWT
	StoreToken(req request.StoreTokenRequest) (*respond.StoreTokenRespond, error)
	// ValidateToken 校验令牌，必要时静默刷新
	ValidateToken(ctx context.Context, req request.ValidateTokenRequest) (*respond.ValidateTokenRespond, error)
	// RefreshToken 强制刷新
	RefreshToken(ctx context.Context, req request.RefreshTokenRequest) (*respond.ValidateTokenRespond, error)
	// GetToken 取用有效的 access token
	GetToken(ctx context.Context, userId string) (*respond.GetTokenRespond, error)
	// ClearSession 软登出，只清 access token 与过期时间
	ClearSession(userId string) error
	// ClearTokens 硬登出，清空全部令牌状态
	ClearTokens(userId string) error
	// EnsureValid 供其他 Service 取用有效令牌
	EnsureValid(ctx context.Context, userId string) (*token.TokenState, error)
}

// WebhookRouterService webhook 路由接口
type WebhookRouterService interface {
	// Resolve 解析会话应投递的 webhook
	Resolve(ctx context.Context, sessionId, feature string) string
	// Bind 为会话写入显式绑定
	Bind(ctx context.Context, sessionId, webhookURL string) error
	// Unbind 清除会话的全部显式绑定
	Unbind(ctx context.Context, sessionId string) error
}

// ChatService 聊天业务接口
type ChatService interface {
	// SendMessage 发送消息（乐观持久化 + 外呼 + 回复识别）
	SendMessage(ctx context.Context, req request.SendMessageRequest) (*respond.SendMessageRespond, error)
	// SaveAIReply 工作流异步回调投递回复
	SaveAIReply(ctx context.Context, req request.CallbackRequest) (*respond.ReplyRespond, error)
	// GetSessionList 拉取用户会话列表
	GetSessionList(userId string) ([]respond.SessionListRespond, error)
	// GetMessageList 打开会话拉取消息列表
	GetMessageList(req request.OpenSessionRequest) ([]respond.MessageListRespond, error)
	// DeleteSession 删除会话及其全部消息
	DeleteSession(ctx context.Context, req request.DeleteSessionRequest) error
}

// NotifyService 通知中心接口
type NotifyService interface {
	// Insert 插入通知（带去重）
	Insert(ctx context.Context, req request.InsertNotificationRequest) (*respond.NotificationRespond, error)
	// Update 更新通知状态
	Update(ctx context.Context, req request.UpdateNotificationRequest) (*respond.NotificationRespond, error)
	// List 拉取活跃与历史通知
	List(userId string) (*respond.NotificationListRespond, error)
	// MarkRead 标记已读
	MarkRead(req request.MarkReadRequest) error
	// Dismiss 把通知从活跃列表移除（保留历史）
	Dismiss(notifyId string) error
	// ClearHistory 清空用户的历史通知
	ClearHistory(ctx context.Context, userId string) error
	// ResolveRedirect 处理通知点击，返回跳转目标
	ResolveRedirect(ctx context.Context, userId, notifyId string) (string, error)
}

// IngestService 文件摄取接口
type IngestService interface {
	// Upload 受理一个摄取批次
	Upload(ctx context.Context, userId string, files []n8n.UploadFile) (*respond.IngestRespond, error)
}
