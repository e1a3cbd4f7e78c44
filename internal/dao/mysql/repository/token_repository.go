// 本文件实现 TokenRepository 接口，处理用户令牌的数据库操作
package repository

import (
	"nevermiss_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tokenRepository TokenRepository 接口的实现
type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository 创建 TokenRepository 实例
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

// FindByUserId 查找用户令牌记录
func (r *tokenRepository) FindByUserId(userId string) (*model.UserToken, error) {
	var token model.UserToken
	if err := r.db.Where("user_id = ?", userId).First(&token).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询令牌 user_id=%s", userId)
	}
	return &token, nil
}

// Upsert 写入或更新用户令牌记录
// 按 user_id 冲突时整行覆盖，refresh token 为空则保留旧值
func (r *tokenRepository) Upsert(token *model.UserToken) error {
	assignments := map[string]interface{}{
		"email":            token.Email,
		"access_token_enc": token.AccessTokenEnc,
		"expires_at_unix":  token.ExpiresAtUnix,
	}
	if token.RefreshTokenEnc != "" {
		assignments["refresh_token_enc"] = token.RefreshTokenEnc
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(token).Error
	if err != nil {
		return wrapDBErrorf(err, "写入令牌 user_id=%s", token.UserId)
	}
	return nil
}

// UpdateAccessToken 刷新成功后只更新 access token 与过期时间
func (r *tokenRepository) UpdateAccessToken(userId, accessTokenEnc string, expiresAtUnix int64) error {
	if err := r.db.Model(&model.UserToken{}).
		Where("user_id = ?", userId).
		Updates(map[string]interface{}{
			"access_token_enc": accessTokenEnc,
			"expires_at_unix":  expiresAtUnix,
		}).Error; err != nil {
		return wrapDBErrorf(err, "更新令牌 user_id=%s", userId)
	}
	return nil
}

// DeleteByUserId 清除用户令牌
// 令牌属敏感数据，使用 Unscoped 硬删除不留软删历史
func (r *tokenRepository) DeleteByUserId(userId string) error {
	if err := r.db.Unscoped().Where("user_id = ?", userId).
		Delete(&model.UserToken{}).Error; err != nil {
		return wrapDBErrorf(err, "删除令牌 user_id=%s", userId)
	}
	return nil
}
