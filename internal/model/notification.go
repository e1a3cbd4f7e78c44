// 本文件定义通知模型，承载文件处理进度等后台任务通知
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Notification 通知模型
// 对应数据库 notifications 表
type Notification struct {
	gorm.Model

	// NotifyId 通知唯一标识
	NotifyId string `gorm:"column:notify_id;uniqueIndex;type:varchar(64);not null;comment:通知标识"`

	// UserId 通知所属用户
	UserId string `gorm:"column:user_id;index;type:varchar(64);not null;comment:用户标识"`

	// Title 通知标题
	Title string `gorm:"column:title;type:varchar(128);not null;comment:标题"`

	// Content 通知正文
	Content string `gorm:"column:content;type:TEXT;comment:正文"`

	// Status 通知状态：info/pending/completed/warning/error
	Status string `gorm:"column:status;type:varchar(16);not null;default:info;comment:状态"`

	// Source 通知来源，如 file_processing
	Source string `gorm:"column:source;type:varchar(32);comment:来源"`

	// SessionId 关联会话，点击跳转时用于定位
	SessionId string `gorm:"column:session_id;type:varchar(64);comment:关联会话"`

	// RedirectURL 点击通知后的跳转目标，可为空
	RedirectURL string `gorm:"column:redirect_url;type:varchar(512);comment:跳转地址"`

	// Read 是否已读
	Read bool `gorm:"column:read;not null;default:false;comment:是否已读"`

	// ExpiresAt 活跃期截止时间
	// 截止后通知从活跃列表转入历史列表
	ExpiresAt sql.NullTime `gorm:"column:expires_at;type:datetime;comment:活跃截止时间"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}
