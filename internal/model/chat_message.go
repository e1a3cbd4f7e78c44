// 本文件定义消息模型，会话内的每条用户消息与 AI 回复各占一行
package model

import (
	"gorm.io/gorm"
)

// ChatMessage 消息模型
// 对应数据库 chat_messages 表
type ChatMessage struct {
	gorm.Model

	// MessageId 消息持久标识（雪花 ID 字符串）
	// 客户端用它对实时推送去重
	MessageId string `gorm:"column:message_id;uniqueIndex;type:varchar(32);not null;comment:消息标识"`

	// SessionId 所属会话
	SessionId string `gorm:"column:session_id;index;type:varchar(64);not null;comment:会话标识"`

	// UserId 所属用户，冗余存储便于按用户清理
	UserId string `gorm:"column:user_id;index;type:varchar(64);not null;comment:用户标识"`

	// Sender 发送方：user 或 ai
	Sender string `gorm:"column:sender;type:varchar(8);not null;comment:发送方"`

	// MessageType 消息类型：text 或 audio
	MessageType string `gorm:"column:message_type;type:varchar(8);not null;default:text;comment:消息类型"`

	// Content 消息正文
	// 音频消息存 data:audio/mpeg;base64,... 形式的 Data URI
	Content string `gorm:"column:content;type:TEXT;comment:消息内容"`

	// Metadata 附加元数据 JSON，如 AI 音频回复的 {"autoplay":true}
	Metadata string `gorm:"column:metadata;type:varchar(255);comment:附加元数据"`
}

// TableName 指定表名
func (ChatMessage) TableName() string {
	return "chat_messages"
}
