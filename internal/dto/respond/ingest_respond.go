package respond

// IngestRespond 文件摄取批次受理结果
type IngestRespond struct {
	SessionId string   `json:"sessionId"` // rag_ 前缀的批次标识
	Accepted  []string `json:"accepted"`  // 已受理的文件名
	Rejected  []string `json:"rejected"`  // 类型不在允许范围内的文件名
	NotifyId  string   `json:"notifyId"`  // 进度通知标识
}
