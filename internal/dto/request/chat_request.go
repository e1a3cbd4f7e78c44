package request

import "encoding/json"

// SendMessageRequest 发送聊天消息
// sessionId 可为空，为空时服务端懒创建会话并在响应中返回
type SendMessageRequest struct {
	UserId      string `json:"userId" binding:"required"`
	SessionId   string `json:"sessionId"`
	Content     string `json:"content" binding:"required"` // 音频消息为 base64 或 Data URI
	MessageType string `json:"messageType"`                // text 或 audio，缺省 text
	Feature     string `json:"feature"`                    // plan/study_guide/university_guide，缺省 plan
	WebhookUrl  string `json:"webhookUrl"`                 // 显式指定本次发送的 webhook，可为空
}

// OpenSessionRequest 打开会话拉取消息列表
type OpenSessionRequest struct {
	UserId    string `json:"userId" form:"userId" binding:"required"`
	SessionId string `json:"sessionId" form:"sessionId" binding:"required"`
}

// DeleteSessionRequest 删除会话及其全部消息
type DeleteSessionRequest struct {
	UserId    string `json:"userId" binding:"required"`
	SessionId string `json:"sessionId" binding:"required"`
}

// BindWebhookRequest 为会话显式绑定 webhook
type BindWebhookRequest struct {
	SessionId  string `json:"sessionId" binding:"required"`
	WebhookUrl string `json:"webhookUrl" binding:"required,url"`
}

// ProxyRequest 通用代理外呼请求
// 客户端把目标 webhook 与任意负载交给服务端转发，负载原样透传
type ProxyRequest struct {
	WebhookUrl string          `json:"webhookUrl" binding:"required,url"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
}

// CallbackRequest n8n 工作流回调，投递 AI 回复
// reply 字段形态不定，由回复识别器解析
type CallbackRequest struct {
	SessionId  string          `json:"sessionId" binding:"required"`
	UserId     string          `json:"userId" binding:"required"`
	Reply      json.RawMessage `json:"reply" binding:"required"`
	WebhookUrl string          `json:"webhookUrl"` // 工作流自报的回调源，用于重绑定
}
