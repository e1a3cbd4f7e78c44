// 本文件实现 MessageRepository 接口，处理消息相关的数据库操作
package repository

import (
	"errors"

	"gorm.io/gorm"

	"nevermiss_server/internal/model"
	"nevermiss_server/pkg/constants"
)

// messageRepository MessageRepository 接口的实现
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// FindBySessionId 按会话查找全部消息，按创建时间正序
func (r *messageRepository) FindBySessionId(sessionId string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := r.db.Where("session_id = ?", sessionId).
		Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息列表 session_id=%s", sessionId)
	}
	return messages, nil
}

// FindLatestAIBySessionId 查会话下最新一条 AI 消息，不存在返回 nil
func (r *messageRepository) FindLatestAIBySessionId(sessionId string) (*model.ChatMessage, error) {
	var message model.ChatMessage
	err := r.db.Where("session_id = ? AND sender = ?", sessionId, constants.SenderAi).
		Order("created_at DESC, id DESC").First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "查询最新 AI 消息 session_id=%s", sessionId)
	}
	return &message, nil
}

// Create 创建消息
func (r *messageRepository) Create(message *model.ChatMessage) error {
	if err := r.db.Create(message).Error; err != nil {
		return wrapDBError(err, "创建消息")
	}
	return nil
}

// SoftDeleteBySessionId 删除会话下全部消息
func (r *messageRepository) SoftDeleteBySessionId(sessionId string) error {
	if err := r.db.Where("session_id = ?", sessionId).
		Delete(&model.ChatMessage{}).Error; err != nil {
		return wrapDBErrorf(err, "删除消息 session_id=%s", sessionId)
	}
	return nil
}
