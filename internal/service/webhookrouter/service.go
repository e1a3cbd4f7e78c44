// Package webhookrouter 实现会话到 webhook 的三层路由解析
// 优先级：会话表 webhook_url 列 > Redis 会话级绑定 > 功能区默认端点
package webhookrouter

import (
	"context"

	"go.uber.org/zap"

	"nevermiss_server/internal/config"
	"nevermiss_server/internal/dao/mysql"
	myredis "nevermiss_server/internal/dao/redis"
	"nevermiss_server/pkg/constants"
	"nevermiss_server/pkg/errorx"
)

// bindingKey 会话级绑定在 Redis 中的键
func bindingKey(sessionId string) string {
	return "webhook_binding_" + sessionId
}

// routerService webhook 路由实现
type routerService struct {
	repos *mysql.Repositories
	cache myredis.CacheService

	// 各功能区默认端点，来自配置
	planWebhook            string
	studyGuideWebhook      string
	universityGuideWebhook string
}

// NewRouterService 构造函数，注入所有依赖
func NewRouterService(repos *mysql.Repositories, cacheService myredis.CacheService, cfg *config.N8NConfig) *routerService {
	return &routerService{
		repos:                  repos,
		cache:                  cacheService,
		planWebhook:            cfg.PlanWebhook,
		studyGuideWebhook:      cfg.StudyGuideWebhook,
		universityGuideWebhook: cfg.UniversityGuideWebhook,
	}
}

// Resolve 解析会话应投递的 webhook
// 三层依次兜底，任何一层取到非空值即返回
func (s *routerService) Resolve(ctx context.Context, sessionId, feature string) string {
	// 第一层：会话表的显式绑定
	if sessionId != "" {
		session, err := s.repos.Session.FindBySessionId(sessionId)
		if err == nil && session.WebhookURL != "" {
			return session.WebhookURL
		}
		if err != nil && errorx.GetCode(err) != errorx.CodeNotFound {
			zap.L().Warn("查询会话绑定失败，继续向下解析",
				zap.String("session_id", sessionId), zap.Error(err))
		}

		// 第二层：Redis 会话级绑定
		bound, err := s.cache.Get(ctx, bindingKey(sessionId))
		if err != nil {
			zap.L().Warn("读取缓存绑定失败，继续向下解析",
				zap.String("session_id", sessionId), zap.Error(err))
		} else if bound != "" {
			return bound
		}
	}

	// 第三层：功能区默认端点
	return s.defaultFor(feature)
}

// defaultFor 返回功能区的默认端点
// 未识别的功能区一律按通用聊天处理
func (s *routerService) defaultFor(feature string) string {
	switch feature {
	case constants.FeatureStudyGuide:
		return s.studyGuideWebhook
	case constants.FeatureUniversityGuide:
		return s.universityGuideWebhook
	default:
		return s.planWebhook
	}
}

// Bind 为会话写入显式绑定
// 会话表缺列（存量库）时静默降级：只写 Redis 绑定，保证行为不变
func (s *routerService) Bind(ctx context.Context, sessionId, webhookURL string) error {
	if sessionId == "" || webhookURL == "" {
		return errorx.ErrInvalidParam
	}

	err := s.repos.Session.UpdateWebhookURL(sessionId, webhookURL)
	if err != nil && !errorx.IsSchemaMismatch(err) {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error("写入会话绑定失败",
			zap.String("session_id", sessionId), zap.Error(err))
		return errorx.ErrServerBusy
	}
	if errorx.IsSchemaMismatch(err) {
		zap.L().Warn("会话表缺少 webhook_url 列，降级到缓存绑定",
			zap.String("session_id", sessionId))
	}

	// Redis 绑定始终同步写入，两层保持一致，也兜住缺列降级
	if err := s.cache.Set(ctx, bindingKey(sessionId), webhookURL, 0); err != nil {
		zap.L().Error("写入缓存绑定失败",
			zap.String("session_id", sessionId), zap.Error(err))
		return errorx.ErrServerBusy
	}
	return nil
}

// Unbind 清除会话的全部显式绑定
func (s *routerService) Unbind(ctx context.Context, sessionId string) error {
	if err := s.repos.Session.UpdateWebhookURL(sessionId, ""); err != nil && !errorx.IsSchemaMismatch(err) {
		if errorx.GetCode(err) != errorx.CodeNotFound {
			zap.L().Warn("清除会话绑定失败", zap.String("session_id", sessionId), zap.Error(err))
		}
	}
	return s.cache.Delete(ctx, bindingKey(sessionId))
}
