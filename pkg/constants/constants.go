package constants

const (
	CHANNEL_SIZE  = 100 // 通道大小
	REDIS_TIMEOUT = 1   // redis timeout (分钟)

	// TITLE_MAX_LEN 会话标题最大长度，超出部分截断并加省略号
	TITLE_MAX_LEN = 50
	// DEFAULT_TITLE 新建会话的占位标题
	DEFAULT_TITLE = "New Conversation"
)

// 功能区标识，决定会话默认路由到哪个 webhook
const (
	FeaturePlan            = "plan"
	FeatureStudyGuide      = "study_guide"
	FeatureUniversityGuide = "university_guide"
)

// 消息发送方
const (
	SenderUser = "user"
	SenderAi   = "ai"
)

// 消息类型
const (
	MessageTypeText  = "text"
	MessageTypeAudio = "audio"
)

// 通知状态
const (
	NotifyInfo      = "info"
	NotifyPending   = "pending"
	NotifyCompleted = "completed"
	NotifyWarning   = "warning"
	NotifyError     = "error"
)

// NotifySourceFileProcessing 文件摄取任务产生的通知来源标识
const NotifySourceFileProcessing = "file_processing"
