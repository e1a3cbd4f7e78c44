package request

// InsertNotificationRequest 插入通知
// dedupKey 非空时按用户去重，重复插入直接忽略
type InsertNotificationRequest struct {
	UserId      string `json:"userId" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Content     string `json:"content"`
	Status      string `json:"status"` // info/pending/completed/warning/error，缺省 info
	Source      string `json:"source"`
	SessionId   string `json:"sessionId"`
	RedirectUrl string `json:"redirectUrl"`
	TTLSeconds  int    `json:"ttlSeconds"` // 活跃期时长（秒），0 表示长期活跃
	DedupKey    string `json:"dedupKey"`
}

// UpdateNotificationRequest 更新通知状态
// 后台任务进度推进时原地更新同一条通知
type UpdateNotificationRequest struct {
	NotifyId    string `json:"notifyId" binding:"required"`
	Status      string `json:"status" binding:"required"`
	Content     string `json:"content"`
	RedirectUrl string `json:"redirectUrl"`
	TTLSeconds  int    `json:"ttlSeconds"`
}

// MarkReadRequest 标记通知已读
type MarkReadRequest struct {
	NotifyId string `json:"notifyId" binding:"required"`
}
