// 本文件实现 NotificationRepository 接口，处理通知相关的数据库操作
package repository

import (
	"time"

	"nevermiss_server/internal/model"

	"gorm.io/gorm"
)

// notificationRepository NotificationRepository 接口的实现
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建 NotificationRepository 实例
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// FindActiveByUserId 查找用户的活跃通知
// 活跃 = 未设置截止时间，或截止时间尚未到达
func (r *notificationRepository) FindActiveByUserId(userId string) ([]model.Notification, error) {
	var notifications []model.Notification
	if err := r.db.Where("user_id = ? AND (expires_at IS NULL OR expires_at > ?)", userId, time.Now()).
		Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询活跃通知 user_id=%s", userId)
	}
	return notifications, nil
}

// FindHistoryByUserId 查找用户的历史通知（已过活跃期）
func (r *notificationRepository) FindHistoryByUserId(userId string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notifications []model.Notification
	if err := r.db.Where("user_id = ? AND expires_at IS NOT NULL AND expires_at <= ?", userId, time.Now()).
		Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询历史通知 user_id=%s", userId)
	}
	return notifications, nil
}

// FindByNotifyId 按通知标识查找
func (r *notificationRepository) FindByNotifyId(notifyId string) (*model.Notification, error) {
	var notification model.Notification
	if err := r.db.Where("notify_id = ?", notifyId).First(&notification).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询通知 notify_id=%s", notifyId)
	}
	return &notification, nil
}

// Create 创建通知
func (r *notificationRepository) Create(notification *model.Notification) error {
	if err := r.db.Create(notification).Error; err != nil {
		return wrapDBError(err, "创建通知")
	}
	return nil
}

// UpdateStatus 更新通知状态与正文
// 同一任务的进度通知原地更新，而不是堆叠新行
func (r *notificationRepository) UpdateStatus(notifyId string, updates map[string]interface{}) error {
	if err := r.db.Model(&model.Notification{}).
		Where("notify_id = ?", notifyId).Updates(updates).Error; err != nil {
		return wrapDBErrorf(err, "更新通知 notify_id=%s", notifyId)
	}
	return nil
}

// MarkRead 标记通知已读
func (r *notificationRepository) MarkRead(notifyId string) error {
	if err := r.db.Model(&model.Notification{}).
		Where("notify_id = ?", notifyId).Update("read", true).Error; err != nil {
		return wrapDBErrorf(err, "标记已读 notify_id=%s", notifyId)
	}
	return nil
}

// SoftDeleteHistoryByUserId 清空用户的历史通知
// 只清已过活跃期的行，活跃通知不受影响
func (r *notificationRepository) SoftDeleteHistoryByUserId(userId string) error {
	if err := r.db.Where("user_id = ? AND expires_at IS NOT NULL AND expires_at <= ?", userId, time.Now()).
		Delete(&model.Notification{}).Error; err != nil {
		return wrapDBErrorf(err, "清空历史通知 user_id=%s", userId)
	}
	return nil
}
