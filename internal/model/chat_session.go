// Package model 定义数据库实体模型
// 本文件定义会话模型，一条记录对应某用户在某功能区的一次对话
package model

import (
	"gorm.io/gorm"
)

// ChatSession 会话模型
// 对应数据库 chat_sessions 表
// 会话在首条消息真正发出时才落库（懒创建）
type ChatSession struct {
	gorm.Model // 内嵌 GORM 模型，包含 ID、CreatedAt、UpdatedAt、DeletedAt

	// SessionId 会话唯一标识
	// 格式：session_<毫秒时间戳>_<随机串>，摄取批次则以 rag_ 开头
	SessionId string `gorm:"column:session_id;uniqueIndex;type:varchar(64);not null;comment:会话标识"`

	// UserId 会话所属用户
	UserId string `gorm:"column:user_id;index;type:varchar(64);not null;comment:用户标识"`

	// Title 会话标题
	// 由首条用户消息派生，超长截断并加省略号
	Title string `gorm:"column:title;type:varchar(64);not null;comment:会话标题"`

	// Feature 功能区标识，决定默认 webhook 路由
	Feature string `gorm:"column:feature;type:varchar(32);not null;comment:功能区"`

	// MessageCount 消息计数
	// 首轮置 2（用户消息 + AI 占位），其后每次发送加 1
	MessageCount int `gorm:"column:message_count;not null;default:0;comment:消息计数"`

	// WebhookURL 会话显式绑定的 webhook 地址
	// 为空表示未绑定，路由时继续向下一层解析
	// 旧库可能缺少此列，写入失败时降级到 Redis 绑定
	WebhookURL string `gorm:"column:webhook_url;type:varchar(512);comment:绑定的webhook"`
}

// TableName 指定表名
func (ChatSession) TableName() string {
	return "chat_sessions"
}
