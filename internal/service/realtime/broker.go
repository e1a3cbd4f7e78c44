// Package realtime 实现实时推送层
// broker.go
// 核心职责：定义事件模型与消息代理接口
// 抽象事件发布和客户端管理，支持 Kafka 和 Channel 两种实现
package realtime

import (
	"context"
	"encoding/json"
)

// 事件类型
const (
	// EventMessage AI 回复落库后推送给会话订阅者
	EventMessage = "message"
	// EventNotification 通知插入或状态变更后推送
	EventNotification = "notification"
)

// Event 实时事件
// 序列化后经 Broker 流转，网关按 UserId 定位连接、按 SessionId 过滤
type Event struct {
	Kind      string          `json:"kind"`
	UserId    string          `json:"userId"`
	SessionId string          `json:"sessionId,omitempty"`
	MessageId string          `json:"messageId,omitempty"` // 持久消息标识，客户端据此去重
	Sender    string          `json:"sender,omitempty"`    // 消息事件的发送方
	Payload   json.RawMessage `json:"payload"`
}

// MessageBroker 定义消息代理接口
// 支持多种实现：KafkaBroker (多实例), ChannelBroker (单机)
type MessageBroker interface {
	// Publish 发布事件到消息队列/通道
	Publish(ctx context.Context, event *Event) error
	// RegisterClient 注册客户端连接
	RegisterClient(client *UserConn)
	// UnregisterClient 注销客户端连接
	UnregisterClient(client *UserConn)
	// GetClient 获取指定用户的连接
	GetClient(userId string) *UserConn
	// Start 启动消息消费循环
	Start()
	// Close 关闭代理资源
	Close()
}

// GlobalBroker 全局消息代理实例
// 在 main.go 中根据配置初始化为 KafkaBroker 或 ChannelBroker
var GlobalBroker MessageBroker
