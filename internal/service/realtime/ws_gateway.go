// ws_gateway.go
// 核心职责：WebSocket 连接生命周期管理
// 1. 建立 WebSocket 连接 (Upgrade)
// 2. 封装连接对象，管理读写协程 (Read/Write Loop)
// 3. 会话订阅、AI 过滤与按持久标识去重都在连接侧完成
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nevermiss_server/pkg/constants"
)

// controlMessage 客户端发来的控制消息
// subscribe 切换订阅会话，unsubscribe 清空订阅
type controlMessage struct {
	Action    string `json:"action"`
	SessionId string `json:"sessionId"`
}

// UserConn 表示一个 WebSocket 客户端连接
// 每个连接同一时刻只订阅一个会话
type UserConn struct {
	Conn   *websocket.Conn
	UserId string
	// SendBack 推送通道，Write 协程消费
	SendBack chan []byte

	mu        sync.Mutex
	sessionId string              // 当前订阅的会话，空表示未订阅
	seen      map[string]struct{} // 已推送过的消息标识，切换订阅时清空

	closeOnce sync.Once
}

// 跨域前端（开发端口不同）需要放开 Origin 检查，否则握手返回 403
var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscribe 切换订阅会话
// 先清掉旧订阅的去重状态再写入新会话，避免旧会话的标识阻挡新会话推送
func (c *UserConn) Subscribe(sessionId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionId = sessionId
	c.seen = make(map[string]struct{})
}

// Unsubscribe 清空订阅
func (c *UserConn) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionId = ""
	c.seen = nil
}

// Enqueue 投递事件到连接
// 消息事件要求：订阅会话匹配、发送方为 ai、持久标识未推送过
// 通知事件不做会话过滤，直接下发
func (c *UserConn) Enqueue(event *Event) {
	if event.Kind == EventMessage {
		c.mu.Lock()
		if c.sessionId == "" || c.sessionId != event.SessionId {
			c.mu.Unlock()
			return
		}
		if event.Sender != constants.SenderAi {
			c.mu.Unlock()
			return // 用户消息客户端已乐观展示，推送回去会造成重复
		}
		if event.MessageId != "" {
			if _, dup := c.seen[event.MessageId]; dup {
				c.mu.Unlock()
				return
			}
			c.seen[event.MessageId] = struct{}{}
		}
		c.mu.Unlock()
	}

	data, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("marshal event failed", zap.Error(err))
		return
	}
	select {
	case c.SendBack <- data:
	default:
		// 推送通道满说明客户端消费不过来，丢弃事件保护服务端
		zap.L().Warn("realtime send buffer full, event dropped",
			zap.String("user_id", c.UserId), zap.String("kind", event.Kind))
	}
}

// Read 从 WebSocket 读取控制消息
// 连接断开时负责注销自身
func (c *UserConn) Read() {
	defer func() {
		GlobalBroker.UnregisterClient(c)
		c.Teardown()
	}()

	for {
		_, jsonMessage, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		var ctrl controlMessage
		if err := json.Unmarshal(jsonMessage, &ctrl); err != nil {
			zap.L().Warn("bad control message", zap.String("user_id", c.UserId))
			continue
		}
		switch ctrl.Action {
		case "subscribe":
			if ctrl.SessionId != "" {
				c.Subscribe(ctrl.SessionId)
			}
		case "unsubscribe":
			c.Unsubscribe()
		}
	}
}

// Write 从 SendBack 通道读取事件并发送给 WebSocket
func (c *UserConn) Write() {
	for data := range c.SendBack {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			zap.L().Error("ws write failed", zap.String("user_id", c.UserId), zap.Error(err))
			return
		}
	}
}

// Teardown 关闭连接并释放通道，幂等
func (c *UserConn) Teardown() {
	c.closeOnce.Do(func() {
		_ = c.Conn.Close()
		close(c.SendBack)
	})
}

// NewClientInit 建立 WebSocket 连接并注册到 Broker
// userId 已由 JWT 中间件校验
func NewClientInit(c *gin.Context, userId string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("ws upgrade failed", zap.Error(err))
		return
	}
	client := &UserConn{
		Conn:     conn,
		UserId:   userId,
		SendBack: make(chan []byte, constants.CHANNEL_SIZE),
	}
	GlobalBroker.RegisterClient(client)
	go client.Read()
	go client.Write()
	zap.L().Info("ws connected", zap.String("user_id", userId))
}
