// 本文件定义用户令牌模型，Google OAuth 令牌加密后落库
package model

import (
	"gorm.io/gorm"
)

// UserToken 用户令牌模型
// 对应数据库 user_tokens 表，每个用户一行
type UserToken struct {
	gorm.Model

	// UserId 令牌所属用户
	UserId string `gorm:"column:user_id;uniqueIndex;type:varchar(64);not null;comment:用户标识"`

	// Email 用户邮箱，来自 Google 账号信息
	Email string `gorm:"column:email;type:varchar(128);comment:邮箱"`

	// DisplayName 用户展示名，来自 Google 账号信息
	DisplayName string `gorm:"column:display_name;type:varchar(128);comment:展示名"`

	// AccessTokenEnc AES-GCM 加密后的 access token
	AccessTokenEnc string `gorm:"column:access_token_enc;type:TEXT;not null;comment:加密的access_token"`

	// RefreshTokenEnc AES-GCM 加密后的 refresh token
	// 部分登录流程不会下发 refresh token，此列可为空
	RefreshTokenEnc string `gorm:"column:refresh_token_enc;type:TEXT;comment:加密的refresh_token"`

	// ExpiresAtUnix access token 过期时间（Unix 秒）
	ExpiresAtUnix int64 `gorm:"column:expires_at_unix;not null;default:0;comment:过期时间"`
}

// TableName 指定表名
func (UserToken) TableName() string {
	return "user_tokens"
}
