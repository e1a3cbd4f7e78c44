// Package repository 定义数据访问层接口和实现
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
package repository

import (
	"nevermiss_server/internal/model"
)

// SessionRepository 会话数据访问接口
type SessionRepository interface {
	// FindBySessionId 按会话标识查找会话
	FindBySessionId(sessionId string) (*model.ChatSession, error)
	// FindByUserId 按用户查找全部会话，按更新时间倒序
	FindByUserId(userId string) ([]model.ChatSession, error)
	// Create 创建会话
	Create(session *model.ChatSession) error
	// UpdateMeta 更新会话的标题与消息计数
	UpdateMeta(sessionId string, updates map[string]interface{}) error
	// Touch 仅刷新会话的更新时间
	Touch(sessionId string) error
	// UpdateWebhookURL 写入会话显式绑定的 webhook
	// 旧库缺少 webhook_url 列时返回 CodeSchemaMismatch
	UpdateWebhookURL(sessionId, webhookURL string) error
	// SoftDeleteBySessionId 软删除会话
	SoftDeleteBySessionId(sessionId string) error
}

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	// FindBySessionId 按会话查找全部消息，按创建时间正序
	FindBySessionId(sessionId string) ([]model.ChatMessage, error)
	// FindLatestAIBySessionId 查会话下最新一条 AI 消息，不存在返回 nil
	FindLatestAIBySessionId(sessionId string) (*model.ChatMessage, error)
	// Create 创建消息
	Create(message *model.ChatMessage) error
	// SoftDeleteBySessionId 删除会话下全部消息
	SoftDeleteBySessionId(sessionId string) error
}

// NotificationRepository 通知数据访问接口
type NotificationRepository interface {
	// FindActiveByUserId 查找用户的活跃通知（未过期），按创建时间倒序
	FindActiveByUserId(userId string) ([]model.Notification, error)
	// FindHistoryByUserId 查找用户的历史通知（已过期），按创建时间倒序
	FindHistoryByUserId(userId string, limit int) ([]model.Notification, error)
	// FindByNotifyId 按通知标识查找
	FindByNotifyId(notifyId string) (*model.Notification, error)
	// Create 创建通知
	Create(notification *model.Notification) error
	// UpdateStatus 更新通知状态与正文
	UpdateStatus(notifyId string, updates map[string]interface{}) error
	// MarkRead 标记通知已读
	MarkRead(notifyId string) error
	// SoftDeleteHistoryByUserId 清空用户已过活跃期的通知
	SoftDeleteHistoryByUserId(userId string) error
}

// TokenRepository 用户令牌数据访问接口
type TokenRepository interface {
	// FindByUserId 查找用户令牌记录
	FindByUserId(userId string) (*model.UserToken, error)
	// Upsert 写入或更新用户令牌记录
	Upsert(token *model.UserToken) error
	// UpdateAccessToken 刷新成功后只更新 access token 与过期时间
	UpdateAccessToken(userId, accessTokenEnc string, expiresAtUnix int64) error
	// DeleteByUserId 清除用户令牌（硬删除，令牌属敏感数据不留软删历史）
	DeleteByUserId(userId string) error
}
