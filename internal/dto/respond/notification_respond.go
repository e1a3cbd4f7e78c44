package respond

// NotificationRespond 通知列表项
type NotificationRespond struct {
	NotifyId    string `json:"notifyId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	Source      string `json:"source"`
	SessionId   string `json:"sessionId,omitempty"`
	RedirectUrl string `json:"redirectUrl,omitempty"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"createdAt"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

// NotificationListRespond 通知中心视图
// active 为活跃通知，history 为已过活跃期的历史通知
type NotificationListRespond struct {
	Active  []NotificationRespond `json:"active"`
	History []NotificationRespond `json:"history"`
}
