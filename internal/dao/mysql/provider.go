// Package mysql 提供 Repository 层聚合与构造
package mysql

import (
	"gorm.io/gorm"

	"nevermiss_server/internal/dao/mysql/repository"
)

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db           *gorm.DB
	Session      repository.SessionRepository      // 会话 Repository
	Message      repository.MessageRepository      // 消息 Repository
	Notification repository.NotificationRepository // 通知 Repository
	Token        repository.TokenRepository        // 令牌 Repository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		Session:      repository.NewSessionRepository(db),
		Message:      repository.NewMessageRepository(db),
		Notification: repository.NewNotificationRepository(db),
		Token:        repository.NewTokenRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// 事务内的所有操作要么全部成功，要么全部回滚
func (r *Repositories) Transaction(fn func(txRepos *Repositories) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
