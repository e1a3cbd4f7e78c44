// Package chat 实现聊天主流程
// service.go
// 核心职责：乐观发送管线
// 1. 用户消息先行落库（乐观持久化），外呼失败也不回滚
// 2. 同一会话的发送严格串行，跨会话互不阻塞
// 3. 首轮发送派生标题并置消息计数为 2，其后每轮加 1
// 4. 回复经识别器归一化后落库并推送
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nevermiss_server/internal/dao/mysql"
	myredis "nevermiss_server/internal/dao/redis"
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/dto/respond"
	"nevermiss_server/internal/model"
	"nevermiss_server/internal/service/realtime"
	"nevermiss_server/internal/service/token"
	"nevermiss_server/pkg/constants"
	"nevermiss_server/pkg/errorx"
	"nevermiss_server/pkg/util/random"
	"nevermiss_server/pkg/util/snowflake"
)

// WebhookRouter 会话到 webhook 的路由解析
type WebhookRouter interface {
	Resolve(ctx context.Context, sessionId, feature string) string
	Bind(ctx context.Context, sessionId, webhookURL string) error
	Unbind(ctx context.Context, sessionId string) error
}

// TokenProvider 取用有效 Google 令牌
type TokenProvider interface {
	EnsureValid(ctx context.Context, userId string) (*token.TokenState, error)
}

// Dispatcher webhook 外呼
type Dispatcher interface {
	Dispatch(ctx context.Context, webhookURL string, payload any) ([]byte, error)
}

// chatService 聊天业务逻辑实现
type chatService struct {
	repos      *mysql.Repositories
	cache      myredis.AsyncCacheService
	router     WebhookRouter
	tokens     TokenProvider
	dispatcher Dispatcher
	broker     func() realtime.MessageBroker

	// locks 会话级串行锁，Key 为 sessionId（懒创建阶段为 userId）
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewChatService 构造函数，注入所有依赖
// brokerFn 延迟取用全局 Broker，避免初始化顺序耦合
func NewChatService(
	repos *mysql.Repositories,
	cacheService myredis.AsyncCacheService,
	router WebhookRouter,
	tokens TokenProvider,
	dispatcher Dispatcher,
	brokerFn func() realtime.MessageBroker,
) *chatService {
	return &chatService{
		repos:      repos,
		cache:      cacheService,
		router:     router,
		tokens:     tokens,
		dispatcher: dispatcher,
		broker:     brokerFn,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor 取会话级锁，不存在则创建
// 锁对象常驻内存，数量与活跃会话同量级，可接受
func (s *chatService) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if mu, ok := s.locks[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	s.locks[key] = mu
	return mu
}

// deriveTitle 从首条消息派生会话标题
// 截取前 50 个字符，超长加省略号；按 rune 截断避免劈开多字节字符
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if title == "" {
		return constants.DEFAULT_TITLE
	}
	runes := []rune(title)
	if len(runes) <= constants.TITLE_MAX_LEN {
		return title
	}
	return string(runes[:constants.TITLE_MAX_LEN]) + "..."
}

// SendMessage 发送消息主流程
func (s *chatService) SendMessage(ctx context.Context, req request.SendMessageRequest) (*respond.SendMessageRespond, error) {
	feature := req.Feature
	if feature == "" {
		feature = constants.FeaturePlan
	}
	messageType := req.MessageType
	if messageType == "" {
		messageType = constants.MessageTypeText
	}

	// 音频消息：落库存 Data URI，外呼送裸 base64
	content := req.Content
	dispatchContent := req.Content
	if messageType == constants.MessageTypeAudio {
		dataURI, err := NormalizeAudioContent(req.Content)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.CodeInvalidParam, "音频内容不合法")
		}
		content = dataURI
		dispatchContent = strings.TrimPrefix(dataURI, audioDataURIPrefix)
	}

	// 懒创建阶段以 userId 串行，避免同一用户并发首发创建出两个会话
	lockKey := req.SessionId
	if lockKey == "" {
		lockKey = "create_" + req.UserId
	}
	mu := s.lockFor(lockKey)
	mu.Lock()
	defer mu.Unlock()

	session, firstTurn, err := s.ensureSession(ctx, req.UserId, req.SessionId, feature)
	if err != nil {
		return nil, err
	}

	// 会话已存在时还要再抢会话级锁（懒创建路径拿的是用户锁）
	if req.SessionId == "" {
		sessionMu := s.lockFor(session.SessionId)
		sessionMu.Lock()
		defer sessionMu.Unlock()
	}

	// 乐观持久化：用户消息先落库，后续任何失败都不回滚
	userMsg := &model.ChatMessage{
		MessageId:   snowflake.GenerateIDString(),
		SessionId:   session.SessionId,
		UserId:      req.UserId,
		Sender:      constants.SenderUser,
		MessageType: messageType,
		Content:     content,
	}
	if err := s.repos.Message.Create(userMsg); err != nil {
		zap.L().Error("用户消息落库失败",
			zap.String("session_id", session.SessionId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	// 首轮：派生标题 + 计数置 2（用户消息与随后的 AI 回复各占一位）
	// 其后每轮计数加 1
	rsp := &respond.SendMessageRespond{
		SessionId: session.SessionId,
		MessageId: userMsg.MessageId,
	}
	if firstTurn {
		// 音频首发无法从正文派生标题，保留默认占位
		title := constants.DEFAULT_TITLE
		if messageType == constants.MessageTypeText {
			title = deriveTitle(req.Content)
		}
		if err := s.repos.Session.UpdateMeta(session.SessionId, map[string]interface{}{
			"title":         title,
			"message_count": 2,
		}); err != nil {
			zap.L().Error("更新会话元数据失败", zap.String("session_id", session.SessionId), zap.Error(err))
		}
		rsp.Title = title
	} else {
		if err := s.repos.Session.UpdateMeta(session.SessionId, map[string]interface{}{
			"message_count": session.MessageCount + 1,
		}); err != nil {
			zap.L().Error("更新消息计数失败", zap.String("session_id", session.SessionId), zap.Error(err))
		}
	}

	// 显式 webhook 优先并同时写入绑定，后续消息不再需要携带
	webhookURL := req.WebhookUrl
	if webhookURL != "" {
		if err := s.router.Bind(ctx, session.SessionId, webhookURL); err != nil {
			zap.L().Warn("写入显式绑定失败，仅本次生效",
				zap.String("session_id", session.SessionId), zap.Error(err))
		}
	} else {
		webhookURL = s.router.Resolve(ctx, session.SessionId, feature)
	}

	// 尽力而为地附带 Google 令牌，拿不到就不带，不阻塞发送
	payload := s.buildPayload(ctx, req.UserId, session.SessionId, feature, messageType, dispatchContent)

	raw, err := s.dispatcher.Dispatch(ctx, webhookURL, payload)
	if err != nil {
		// 用户消息已落库，外呼失败按错误类别原样上抛
		zap.L().Error("webhook 外呼失败",
			zap.String("session_id", session.SessionId),
			zap.String("webhook", webhookURL),
			zap.Error(err))
		return rsp, err
	}

	// 工作流同步返回了回复：识别、落库、推送
	if len(raw) > 0 {
		reply, recognized := DecodeReply(raw)
		if !recognized {
			zap.L().Warn("回复无法识别，使用占位文本",
				zap.String("session_id", session.SessionId))
		}
		replyRsp := s.persistReply(session.SessionId, req.UserId, reply)
		rsp.Reply = replyRsp
	}

	return rsp, nil
}

// ensureSession 取出或懒创建会话
// 返回的 firstTurn 表示本次发送是否为该会话的首轮
func (s *chatService) ensureSession(ctx context.Context, userId, sessionId, feature string) (*model.ChatSession, bool, error) {
	if sessionId != "" {
		session, err := s.repos.Session.FindBySessionId(sessionId)
		if err != nil {
			if errorx.GetCode(err) == errorx.CodeNotFound {
				return nil, false, errorx.New(errorx.CodeNotFound, "会话不存在")
			}
			zap.L().Error("查询会话失败", zap.String("session_id", sessionId), zap.Error(err))
			return nil, false, errorx.ErrServerBusy
		}
		if session.UserId != userId {
			return nil, false, errorx.New(errorx.CodeUnauthorized, "会话不属于当前用户")
		}
		return session, session.MessageCount == 0, nil
	}

	session := &model.ChatSession{
		SessionId:    random.NewSessionId(),
		UserId:       userId,
		Title:        constants.DEFAULT_TITLE,
		Feature:      feature,
		MessageCount: 0,
	}
	if err := s.repos.Session.Create(session); err != nil {
		zap.L().Error("创建会话失败", zap.String("user_id", userId), zap.Error(err))
		return nil, false, errorx.ErrServerBusy
	}
	zap.L().Info("会话已创建",
		zap.String("session_id", session.SessionId),
		zap.String("user_id", userId),
		zap.String("feature", feature))

	// 文件摄取完成后留下的待接入 webhook，在下一个新会话上生效，消费一次即失效
	pending, err := s.cache.GetAndDelete(ctx, "pending_webhook_"+userId)
	if err != nil {
		zap.L().Warn("读取待接入 webhook 失败", zap.String("user_id", userId), zap.Error(err))
	} else if pending != "" {
		if err := s.router.Bind(ctx, session.SessionId, pending); err != nil {
			zap.L().Warn("接入待绑定 webhook 失败",
				zap.String("session_id", session.SessionId), zap.Error(err))
		}
	}

	return session, true, nil
}

// buildPayload 构造外呼负载
// 同时携带 camelCase 与 snake_case 两套键名，兼容不同版本的工作流
func (s *chatService) buildPayload(ctx context.Context, userId, sessionId, feature, messageType, content string) map[string]any {
	payload := map[string]any{
		"action":      "sendMessage",
		"sessionId":   sessionId,
		"session_id":  sessionId,
		"userId":      userId,
		"user_id":     userId,
		"messageType": messageType,
		"feature":     feature,
		"aiTimestamp": time.Now().Format(time.RFC3339),
	}
	if messageType == constants.MessageTypeAudio {
		// 工作流侧约定收裸 base64
		payload["audioFile"] = content
	} else {
		payload["message"] = content
		payload["chatInput"] = content
	}

	state, err := s.tokens.EnsureValid(ctx, userId)
	if err != nil {
		// 令牌拿不到不影响发送，工作流侧自行决定无令牌时的行为
		zap.L().Warn("附带令牌失败，负载不含令牌", zap.String("user_id", userId))
		return payload
	}
	payload["accessToken"] = state.AccessToken
	payload["access_token"] = state.AccessToken
	payload["refreshToken"] = state.RefreshToken
	payload["userName"] = state.UserName
	payload["user_name"] = state.UserName
	payload["userEmail"] = state.Email
	payload["user_email"] = state.Email
	return payload
}

// persistReply 回复落库并推送
func (s *chatService) persistReply(sessionId, userId string, reply *DecodedReply) *respond.ReplyRespond {
	aiMsg := &model.ChatMessage{
		MessageId:   snowflake.GenerateIDString(),
		SessionId:   sessionId,
		UserId:      userId,
		Sender:      constants.SenderAi,
		MessageType: reply.MessageType,
		Content:     reply.Content,
	}
	// 音频回复默认自动播放
	if reply.MessageType == constants.MessageTypeAudio {
		aiMsg.Metadata = `{"autoplay":true}`
	}
	if err := s.repos.Message.Create(aiMsg); err != nil {
		zap.L().Error("回复落库失败", zap.String("session_id", sessionId), zap.Error(err))
	}
	if err := s.repos.Session.Touch(sessionId); err != nil {
		zap.L().Warn("刷新会话时间失败", zap.String("session_id", sessionId), zap.Error(err))
	}

	replyRsp := &respond.ReplyRespond{
		MessageId:   aiMsg.MessageId,
		MessageType: reply.MessageType,
		Content:     reply.Content,
		Metadata:    aiMsg.Metadata,
	}

	// 推送给其他在线端（发送端已从同步响应拿到回复，靠持久标识去重）
	if broker := s.broker(); broker != nil {
		payload, _ := json.Marshal(replyRsp)
		event := &realtime.Event{
			Kind:      realtime.EventMessage,
			UserId:    userId,
			SessionId: sessionId,
			MessageId: aiMsg.MessageId,
			Sender:    constants.SenderAi,
			Payload:   payload,
		}
		if err := broker.Publish(context.Background(), event); err != nil {
			zap.L().Error("推送回复失败", zap.String("session_id", sessionId), zap.Error(err))
		}
	}

	return replyRsp
}

// SaveAIReply 工作流异步回调投递回复
// 回调可自报来源 webhook，顺带刷新会话绑定
func (s *chatService) SaveAIReply(ctx context.Context, req request.CallbackRequest) (*respond.ReplyRespond, error) {
	session, err := s.repos.Session.FindBySessionId(req.SessionId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		return nil, errorx.ErrServerBusy
	}
	if session.UserId != req.UserId {
		return nil, errorx.New(errorx.CodeUnauthorized, "会话与用户不匹配")
	}

	reply, recognized := DecodeReply(req.Reply)
	if !recognized {
		zap.L().Warn("回调回复无法识别，使用占位文本", zap.String("session_id", req.SessionId))
	}

	if req.WebhookUrl != "" {
		if err := s.router.Bind(ctx, req.SessionId, req.WebhookUrl); err != nil {
			zap.L().Warn("回调重绑定失败", zap.String("session_id", req.SessionId), zap.Error(err))
		}
	}

	// 工作流可能同步响应又异步回调同一条回复；回调内容与最新 AI 消息
	// 一致时跳过落库，返回已有消息
	if latest, err := s.repos.Message.FindLatestAIBySessionId(req.SessionId); err != nil {
		zap.L().Warn("查询最新 AI 消息失败", zap.String("session_id", req.SessionId), zap.Error(err))
	} else if latest != nil && latest.MessageType == reply.MessageType && latest.Content == reply.Content {
		zap.L().Info("回调回复与最新 AI 消息一致，跳过重复落库",
			zap.String("session_id", req.SessionId),
			zap.String("message_id", latest.MessageId))
		return &respond.ReplyRespond{
			MessageId:   latest.MessageId,
			MessageType: latest.MessageType,
			Content:     latest.Content,
			Metadata:    latest.Metadata,
		}, nil
	}

	return s.persistReply(req.SessionId, req.UserId, reply), nil
}

// GetSessionList 拉取用户会话列表
func (s *chatService) GetSessionList(userId string) ([]respond.SessionListRespond, error) {
	sessions, err := s.repos.Session.FindByUserId(userId)
	if err != nil {
		zap.L().Error("查询会话列表失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	list := make([]respond.SessionListRespond, 0, len(sessions))
	for _, sess := range sessions {
		list = append(list, respond.SessionListRespond{
			SessionId:    sess.SessionId,
			Title:        sess.Title,
			Feature:      sess.Feature,
			MessageCount: sess.MessageCount,
			UpdatedAt:    sess.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return list, nil
}

// GetMessageList 打开会话拉取消息列表
func (s *chatService) GetMessageList(req request.OpenSessionRequest) ([]respond.MessageListRespond, error) {
	session, err := s.repos.Session.FindBySessionId(req.SessionId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		return nil, errorx.ErrServerBusy
	}
	if session.UserId != req.UserId {
		return nil, errorx.New(errorx.CodeUnauthorized, "会话不属于当前用户")
	}

	messages, err := s.repos.Message.FindBySessionId(req.SessionId)
	if err != nil {
		zap.L().Error("查询消息列表失败", zap.String("session_id", req.SessionId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	list := make([]respond.MessageListRespond, 0, len(messages))
	for _, msg := range messages {
		list = append(list, respond.MessageListRespond{
			MessageId:   msg.MessageId,
			Sender:      msg.Sender,
			MessageType: msg.MessageType,
			Content:     msg.Content,
			Metadata:    msg.Metadata,
			CreatedAt:   msg.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return list, nil
}

// DeleteSession 删除会话及其全部消息
// 会话与消息在同一事务内删除，绑定键异步清理
func (s *chatService) DeleteSession(ctx context.Context, req request.DeleteSessionRequest) error {
	session, err := s.repos.Session.FindBySessionId(req.SessionId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		return errorx.ErrServerBusy
	}
	if session.UserId != req.UserId {
		return errorx.New(errorx.CodeUnauthorized, "会话不属于当前用户")
	}

	err = s.repos.Transaction(func(tx *mysql.Repositories) error {
		if err := tx.Message.SoftDeleteBySessionId(req.SessionId); err != nil {
			return err
		}
		return tx.Session.SoftDeleteBySessionId(req.SessionId)
	})
	if err != nil {
		zap.L().Error("删除会话失败", zap.String("session_id", req.SessionId), zap.Error(err))
		return errorx.ErrServerBusy
	}

	s.cache.SubmitTask(func() {
		if err := s.router.Unbind(context.Background(), req.SessionId); err != nil {
			zap.L().Warn("清理会话绑定失败", zap.String("session_id", req.SessionId), zap.Error(err))
		}
	})
	return nil
}
