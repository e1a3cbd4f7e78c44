// 本文件实现 SessionRepository 接口，处理会话相关的数据库操作
package repository

import (
	"strings"
	"time"

	"nevermiss_server/internal/model"
	"nevermiss_server/pkg/errorx"

	"gorm.io/gorm"
)

// sessionRepository SessionRepository 接口的实现
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// FindBySessionId 按会话标识查找会话
func (r *sessionRepository) FindBySessionId(sessionId string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("session_id = ?", sessionId).First(&session).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 session_id=%s", sessionId)
	}
	return &session, nil
}

// FindByUserId 按用户查找全部会话
// 最近活跃的排在前面
func (r *sessionRepository) FindByUserId(userId string) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	if err := r.db.Where("user_id = ?", userId).
		Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话列表 user_id=%s", userId)
	}
	return sessions, nil
}

// Create 创建会话
func (r *sessionRepository) Create(session *model.ChatSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return wrapDBError(err, "创建会话")
	}
	return nil
}

// UpdateMeta 更新会话的标题与消息计数
func (r *sessionRepository) UpdateMeta(sessionId string, updates map[string]interface{}) error {
	if err := r.db.Model(&model.ChatSession{}).
		Where("session_id = ?", sessionId).Updates(updates).Error; err != nil {
		return wrapDBErrorf(err, "更新会话 session_id=%s", sessionId)
	}
	return nil
}

// Touch 仅刷新会话的更新时间
// AI 回复落库时调用，使会话在列表中上浮
func (r *sessionRepository) Touch(sessionId string) error {
	if err := r.db.Model(&model.ChatSession{}).
		Where("session_id = ?", sessionId).
		Update("updated_at", time.Now()).Error; err != nil {
		return wrapDBErrorf(err, "刷新会话时间 session_id=%s", sessionId)
	}
	return nil
}

// UpdateWebhookURL 写入会话显式绑定的 webhook
// 存量部署的表可能没有 webhook_url 列，这类失败归为 CodeSchemaMismatch，
// 由调用方降级到 Redis 绑定，不中断主流程
func (r *sessionRepository) UpdateWebhookURL(sessionId, webhookURL string) error {
	err := r.db.Model(&model.ChatSession{}).
		Where("session_id = ?", sessionId).
		Update("webhook_url", webhookURL).Error
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Unknown column") {
		return errorx.Wrapf(err, errorx.CodeSchemaMismatch,
			"会话表缺少 webhook_url 列 session_id=%s", sessionId)
	}
	return wrapDBErrorf(err, "更新会话 webhook session_id=%s", sessionId)
}

// SoftDeleteBySessionId 软删除会话
func (r *sessionRepository) SoftDeleteBySessionId(sessionId string) error {
	if err := r.db.Where("session_id = ?", sessionId).
		Delete(&model.ChatSession{}).Error; err != nil {
		return wrapDBErrorf(err, "删除会话 session_id=%s", sessionId)
	}
	return nil
}
