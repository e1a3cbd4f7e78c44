// kafka_broker.go
// 核心职责：多实例模式下的实时推送实现
// 1. 事件先写入 Kafka，再由各实例的消费循环读回
// 2. 每个实例只维护本机在线用户连接，事件按在线情况过滤
// 3. 任一实例发布的事件都能到达持有目标连接的实例
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"nevermiss_server/pkg/constants"
)

// KafkaBroker 基于 Kafka 的推送服务
type KafkaBroker struct {
	// Clients 本机在线客户端映射表，Key 为 UserId
	Clients sync.Map
	// Login 客户端登录通道
	Login chan *UserConn
	// Logout 客户端登出通道
	Logout chan *UserConn

	client *KafkaClient
	quit   chan struct{}
}

// NewKafkaBroker 创建 KafkaBroker 实例
func NewKafkaBroker(client *KafkaClient) *KafkaBroker {
	return &KafkaBroker{
		Login:  make(chan *UserConn, constants.CHANNEL_SIZE),
		Logout: make(chan *UserConn, constants.CHANNEL_SIZE),
		client: client,
		quit:   make(chan struct{}),
	}
}

// Start 启动消费循环与客户端管理循环
func (k *KafkaBroker) Start() {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error(fmt.Sprintf("kafka broker panic: %v", r))
		}
	}()

	// 消费协程：从 Kafka 读回事件并投递给本机连接
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error(fmt.Sprintf("kafka consumer panic: %v", r))
			}
		}()
		ctx := context.Background()
		for {
			kafkaMessage, err := k.client.Consumer.ReadMessage(ctx)
			if err != nil {
				zap.L().Error("kafka read failed", zap.Error(err))
				continue
			}
			var event Event
			if err := json.Unmarshal(kafkaMessage.Value, &event); err != nil {
				zap.L().Error("unmarshal kafka event failed", zap.Error(err))
				continue
			}
			if value, ok := k.Clients.Load(event.UserId); ok {
				value.(*UserConn).Enqueue(&event)
			}
		}
	}()

	// 主循环：维护本机 Clients 映射表
	for {
		select {
		case client := <-k.Login:
			if client == nil {
				continue
			}
			if old, loaded := k.Clients.Load(client.UserId); loaded {
				if oldConn, ok := old.(*UserConn); ok && oldConn != client {
					oldConn.Teardown()
				}
			}
			k.Clients.Store(client.UserId, client)
			zap.L().Info("realtime client connected", zap.String("user_id", client.UserId))

		case client := <-k.Logout:
			if client == nil {
				continue
			}
			if cur, loaded := k.Clients.Load(client.UserId); loaded && cur == client {
				k.Clients.Delete(client.UserId)
			}
			zap.L().Info("realtime client disconnected", zap.String("user_id", client.UserId))

		case <-k.quit:
			return
		}
	}
}

// Publish 实现 MessageBroker 接口：事件写入 Kafka
func (k *KafkaBroker) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return k.client.SendMessage(ctx, []byte(event.UserId), data)
}

// RegisterClient 实现 MessageBroker 接口：注册客户端
func (k *KafkaBroker) RegisterClient(client *UserConn) {
	k.Login <- client
}

// UnregisterClient 实现 MessageBroker 接口：注销客户端
func (k *KafkaBroker) UnregisterClient(client *UserConn) {
	k.Logout <- client
}

// GetClient 获取本机客户端
func (k *KafkaBroker) GetClient(userId string) *UserConn {
	value, ok := k.Clients.Load(userId)
	if !ok {
		return nil
	}
	return value.(*UserConn)
}

// Close 关闭代理资源
func (k *KafkaBroker) Close() {
	close(k.quit)
	k.client.KafkaClose()
}
