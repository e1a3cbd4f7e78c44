// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
// 遵循依赖倒置原则，通过构造函数注入 Service 依赖
package handler

import (
	"nevermiss_server/internal/service"
)

// Handlers 聚合所有 Handler 实例
// 作为依赖注入的入口，Router 层通过此结构访问各个 Handler
type Handlers struct {
	Auth         *AuthHandler
	Chat         *ChatHandler
	Session      *SessionHandler
	Notification *NotificationHandler
	Callback     *CallbackHandler
	Proxy        *ProxyHandler
	Ingest       *IngestHandler
}

// NewHandlers 创建并注入所有 Handler 实例
// svc: Service 层聚合实例
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:         NewAuthHandler(svc.Token),
		Chat:         NewChatHandler(svc.Chat),
		Session:      NewSessionHandler(svc.Chat, svc.Router),
		Notification: NewNotificationHandler(svc.Notify),
		Callback:     NewCallbackHandler(svc.Chat, svc.Notify),
		Proxy:        NewProxyHandler(svc.N8N),
		Ingest:       NewIngestHandler(svc.Ingest),
	}
}
