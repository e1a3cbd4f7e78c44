// channel_broker.go
// 核心职责：单机模式下的实时推送实现
// 1. 维护在线用户连接 (Channel 模式)
// 2. 事件直接路由到目标用户的连接
// 3. 不依赖外部消息队列，适合单实例部署或开发环境
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"nevermiss_server/pkg/constants"
)

// StandaloneServer 单机实时推送服务
type StandaloneServer struct {
	// Clients 在线客户端映射表，Key 为 UserId，Value 为 *UserConn
	// 使用 sync.Map 实现并发安全，无需手动加锁
	Clients sync.Map
	// Transmit 事件转发通道
	Transmit chan []byte
	// Login 客户端登录通道，新连接建立时写入
	Login chan *UserConn
	// Logout 客户端登出通道，连接断开时写入
	Logout chan *UserConn
}

// NewStandaloneServer 创建 ChannelBroker 实例
func NewStandaloneServer() *StandaloneServer {
	return &StandaloneServer{
		Transmit: make(chan []byte, constants.CHANNEL_SIZE),
		Login:    make(chan *UserConn, constants.CHANNEL_SIZE),
		Logout:   make(chan *UserConn, constants.CHANNEL_SIZE),
	}
}

// Start 启动主循环
// 1. 事件消费循环 (Transmit): 反序列化事件并投递给目标用户
// 2. 客户端管理循环 (Login/Logout): 维护 Clients 映射表
func (s *StandaloneServer) Start() {
	for {
		select {
		case client, ok := <-s.Login:
			if !ok {
				return
			}
			if client == nil {
				continue
			}
			// 同一用户重复连接时，旧连接先注销
			if old, loaded := s.Clients.Load(client.UserId); loaded {
				if oldConn, ok := old.(*UserConn); ok && oldConn != client {
					oldConn.Teardown()
				}
			}
			s.Clients.Store(client.UserId, client)
			zap.L().Info("realtime client connected", zap.String("user_id", client.UserId))

		case client, ok := <-s.Logout:
			if !ok {
				return
			}
			if client == nil {
				continue
			}
			// 只移除仍指向该连接的表项，避免误删重连后的新连接
			if cur, loaded := s.Clients.Load(client.UserId); loaded && cur == client {
				s.Clients.Delete(client.UserId)
			}
			zap.L().Info("realtime client disconnected", zap.String("user_id", client.UserId))

		case data, ok := <-s.Transmit:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal(data, &event); err != nil {
				zap.L().Error("unmarshal realtime event failed", zap.Error(err))
				continue
			}
			s.dispatch(&event)
		}
	}
}

// dispatch 将事件投递给目标用户的连接
// 订阅过滤与去重在连接侧完成
func (s *StandaloneServer) dispatch(event *Event) {
	value, ok := s.Clients.Load(event.UserId)
	if !ok {
		return // 用户不在线，事件静默丢弃，历史数据靠拉取接口补齐
	}
	client := value.(*UserConn)
	client.Enqueue(event)
}

// Publish 实现 MessageBroker 接口：发布事件到 Channel
func (s *StandaloneServer) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.Transmit <- data
	return nil
}

// RegisterClient 实现 MessageBroker 接口：注册客户端
func (s *StandaloneServer) RegisterClient(client *UserConn) {
	s.Login <- client
}

// UnregisterClient 实现 MessageBroker 接口：注销客户端
func (s *StandaloneServer) UnregisterClient(client *UserConn) {
	s.Logout <- client
}

// GetClient 获取客户端
func (s *StandaloneServer) GetClient(userId string) *UserConn {
	value, ok := s.Clients.Load(userId)
	if !ok {
		return nil
	}
	return value.(*UserConn)
}

// Close 关闭服务通道
func (s *StandaloneServer) Close() {
	close(s.Login)
	close(s.Logout)
	close(s.Transmit)
}
