package respond

// SendMessageRespond 发送消息的返回
// 用户消息先行落库，AI 回复可能同步携带（工作流同步返回时）
type SendMessageRespond struct {
	SessionId string        `json:"sessionId"`
	MessageId string        `json:"messageId"`
	Title     string        `json:"title,omitempty"` // 首轮发送时返回派生标题
	Reply     *ReplyRespond `json:"reply,omitempty"`
}

// ReplyRespond 解析后的 AI 回复
type ReplyRespond struct {
	MessageId   string `json:"messageId"`
	MessageType string `json:"messageType"`        // text 或 audio
	Content     string `json:"content"`            // 音频为 data:audio/mpeg;base64,... 形式
	Metadata    string `json:"metadata,omitempty"` // 如音频回复的 {"autoplay":true}
}

// SessionListRespond 会话列表项
type SessionListRespond struct {
	SessionId    string `json:"sessionId"`
	Title        string `json:"title"`
	Feature      string `json:"feature"`
	MessageCount int    `json:"messageCount"`
	UpdatedAt    string `json:"updatedAt"`
}

// MessageListRespond 消息列表项
type MessageListRespond struct {
	MessageId   string `json:"messageId"`
	Sender      string `json:"sender"`
	MessageType string `json:"messageType"`
	Content     string `json:"content"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"createdAt"`
}
