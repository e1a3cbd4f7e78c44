// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"go.uber.org/zap"

	"nevermiss_server/internal/config"
	"nevermiss_server/internal/dao/mysql"
	myredis "nevermiss_server/internal/dao/redis"
	"nevermiss_server/internal/infrastructure/googleauth"
	"nevermiss_server/internal/infrastructure/n8n"
	"nevermiss_server/internal/service/chat"
	"nevermiss_server/internal/service/ingest"
	"nevermiss_server/internal/service/notify"
	"nevermiss_server/internal/service/realtime"
	"nevermiss_server/internal/service/token"
	"nevermiss_server/internal/service/webhookrouter"
	"nevermiss_server/pkg/aes"
)

// Services 聚合所有 Service 实例
// 作为依赖注入的入口，Handler 层通过 service.Svc 访问各个 Service
type Services struct {
	Token  TokenService         // 令牌 Service
	Router WebhookRouterService // webhook 路由 Service
	Chat   ChatService          // 聊天 Service
	Notify NotifyService        // 通知 Service
	Ingest IngestService        // 摄取 Service
	N8N    *n8n.Client          // 外呼客户端，代理接口直接使用
}

// NewServices 创建并注入所有 Service 实例
// 依赖方向：infrastructure -> 单个 Service -> 聚合
func NewServices(conf *config.Config, repos *mysql.Repositories, cacheService myredis.AsyncCacheService) *Services {
	cipher, err := aes.NewCipher(conf.CryptoConfig.EncryptionKey)
	if err != nil {
		zap.L().Fatal("初始化令牌加密失败", zap.Error(err))
	}

	googleClient := googleauth.NewClient(&conf.GoogleOAuthConfig)
	n8nClient := n8n.NewClient(&conf.N8NConfig)

	// Broker 在 main 中按配置初始化，这里延迟取用
	brokerFn := func() realtime.MessageBroker { return realtime.GlobalBroker }

	tokenSvc := token.NewTokenService(repos, cacheService, googleClient, cipher,
		n8nClient, conf.N8NConfig.AuthEventWebhook)
	routerSvc := webhookrouter.NewRouterService(repos, cacheService, &conf.N8NConfig)
	chatSvc := chat.NewChatService(repos, cacheService, routerSvc, tokenSvc, n8nClient, brokerFn)
	notifySvc := notify.NewNotifyService(repos, cacheService, brokerFn)
	ingestSvc := ingest.NewIngestService(cacheService, n8nClient, notifySvc,
		conf.N8NConfig.IngestWebhook)

	return &Services{
		Token:  tokenSvc,
		Router: routerSvc,
		Chat:   chatSvc,
		Notify: notifySvc,
		Ingest: ingestSvc,
		N8N:    n8nClient,
	}
}

// Svc 全局 Services 实例
// Handler 层通过 service.Svc.Chat.SendMessage() 等方式调用
var Svc *Services

// InitServices 初始化全局 Services 实例
// 应在 main.go 中调用，在 Repository 与 Redis 初始化之后
func InitServices(conf *config.Config, repos *mysql.Repositories, cacheService myredis.AsyncCacheService) {
	Svc = NewServices(conf, repos, cacheService)
}
