package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nevermiss_server/internal/dao/mysql"
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/model"
	"nevermiss_server/internal/service/realtime"
	"nevermiss_server/internal/service/token"
	"nevermiss_server/pkg/constants"
	"nevermiss_server/pkg/errorx"
)

// ==================== 测试替身 ====================

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	updates  []map[string]interface{}
	touched  []string
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.ChatSession)}
}

func (f *fakeSessionRepo) FindBySessionId(sessionId string) (*model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionId]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
}

func (f *fakeSessionRepo) FindByUserId(userId string) ([]model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []model.ChatSession
	for _, s := range f.sessions {
		if s.UserId == userId {
			list = append(list, *s)
		}
	}
	return list, nil
}

func (f *fakeSessionRepo) Create(session *model.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *session
	f.sessions[session.SessionId] = &cp
	return nil
}

func (f *fakeSessionRepo) UpdateMeta(sessionId string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updates)
	if s, ok := f.sessions[sessionId]; ok {
		if title, ok := updates["title"].(string); ok {
			s.Title = title
		}
		if count, ok := updates["message_count"].(int); ok {
			s.MessageCount = count
		}
	}
	return nil
}

func (f *fakeSessionRepo) Touch(sessionId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, sessionId)
	return nil
}

func (f *fakeSessionRepo) UpdateWebhookURL(sessionId, webhookURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionId]; ok {
		s.WebhookURL = webhookURL
		return nil
	}
	return errorx.New(errorx.CodeNotFound, "会话不存在")
}

func (f *fakeSessionRepo) SoftDeleteBySessionId(sessionId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionId)
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

func (f *fakeMessageRepo) FindBySessionId(sessionId string) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []model.ChatMessage
	for _, m := range f.messages {
		if m.SessionId == sessionId {
			list = append(list, m)
		}
	}
	return list, nil
}

func (f *fakeMessageRepo) FindLatestAIBySessionId(sessionId string) (*model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].SessionId == sessionId && f.messages[i].Sender == constants.SenderAi {
			cp := f.messages[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) Create(message *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *message)
	return nil
}

func (f *fakeMessageRepo) SoftDeleteBySessionId(sessionId string) error {
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
	sets map[string]map[string]struct{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string]string),
		sets: make(map[string]map[string]struct{}),
	}
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeCache) GetOrError(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", errorx.New(errorx.CodeNotFound, "key not found")
}

func (f *fakeCache) GetAndDelete(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.data[key]
	delete(f.data, key)
	return v, nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func (f *fakeCache) DeleteByPatterns(ctx context.Context, patterns []string) error { return nil }

func (f *fakeCache) AddToSetIfAbsent(ctx context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	if _, ok := f.sets[key][member]; ok {
		return false, nil
	}
	f.sets[key][member] = struct{}{}
	return true, nil
}

func (f *fakeCache) GetSetMembers(ctx context.Context, key string) ([]string, error) {
	return nil, nil
}

func (f *fakeCache) RemoveFromSet(ctx context.Context, key string, members ...interface{}) error {
	return nil
}

// SubmitTask 同步执行，测试断言无需等待
func (f *fakeCache) SubmitTask(action func()) { action() }

type fakeRouter struct {
	mu       sync.Mutex
	resolved string
	binds    map[string]string
}

func newFakeRouter(resolved string) *fakeRouter {
	return &fakeRouter{resolved: resolved, binds: make(map[string]string)}
}

func (f *fakeRouter) Resolve(ctx context.Context, sessionId, feature string) string {
	return f.resolved
}

func (f *fakeRouter) Bind(ctx context.Context, sessionId, webhookURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds[sessionId] = webhookURL
	return nil
}

func (f *fakeRouter) Unbind(ctx context.Context, sessionId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.binds, sessionId)
	return nil
}

type fakeTokens struct {
	state *token.TokenState
	err   error
}

func (f *fakeTokens) EnsureValid(ctx context.Context, userId string) (*token.TokenState, error) {
	return f.state, f.err
}

type fakeDispatcher struct {
	mu       sync.Mutex
	response []byte
	err      error
	payloads []map[string]any
	urls     []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, webhookURL string, payload any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, webhookURL)
	if p, ok := payload.(map[string]any); ok {
		f.payloads = append(f.payloads, p)
	}
	return f.response, f.err
}

func noBroker() realtime.MessageBroker { return nil }

type chatFixture struct {
	svc        *chatService
	sessions   *fakeSessionRepo
	messages   *fakeMessageRepo
	cache      *fakeCache
	router     *fakeRouter
	dispatcher *fakeDispatcher
}

func newChatFixture(dispatcher *fakeDispatcher) *chatFixture {
	sessions := newFakeSessionRepo()
	messages := &fakeMessageRepo{}
	cache := newFakeCache()
	router := newFakeRouter("https://n8n.local/webhook/plan")
	repos := &mysql.Repositories{Session: sessions, Message: messages}
	tokens := &fakeTokens{state: &token.TokenState{
		AccessToken:  "ya29.test",
		RefreshToken: "1//refresh-test",
		Email:        "u@example.com",
		UserName:     "Test User",
	}}
	svc := NewChatService(repos, cache, router, tokens, dispatcher, noBroker)
	return &chatFixture{
		svc:        svc,
		sessions:   sessions,
		messages:   messages,
		cache:      cache,
		router:     router,
		dispatcher: dispatcher,
	}
}

// ==================== deriveTitle ====================

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "hello world", deriveTitle("  hello   world  "))
	assert.Equal(t, constants.DEFAULT_TITLE, deriveTitle("   "))

	long := strings.Repeat("甲", constants.TITLE_MAX_LEN+10)
	title := deriveTitle(long)
	assert.Equal(t, constants.TITLE_MAX_LEN+3, len([]rune(title)))
	assert.True(t, strings.HasSuffix(title, "..."))

	exact := strings.Repeat("a", constants.TITLE_MAX_LEN)
	assert.Equal(t, exact, deriveTitle(exact))
}

// ==================== SendMessage ====================

func TestSendMessageLazyCreatesSession(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{response: []byte(`[{"output":"hi there"}]`)})

	rsp, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:  "u1",
		Content: "plan my day",
	})
	require.NoError(t, err)
	require.NotNil(t, rsp)
	assert.True(t, strings.HasPrefix(rsp.SessionId, "session_"))
	assert.Equal(t, "plan my day", rsp.Title)
	require.NotNil(t, rsp.Reply)
	assert.Equal(t, "hi there", rsp.Reply.Content)

	// 用户消息 + AI 回复各落一行
	assert.Len(t, fx.messages.messages, 2)
	assert.Equal(t, constants.SenderUser, fx.messages.messages[0].Sender)
	assert.Equal(t, constants.SenderAi, fx.messages.messages[1].Sender)

	// 首轮：标题派生且计数置 2
	require.NotEmpty(t, fx.sessions.updates)
	assert.Equal(t, 2, fx.sessions.updates[0]["message_count"])
}

func TestSendMessageSubsequentTurnIncrementsCount(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{response: []byte(`{"output":"ok"}`)})
	fx.sessions.Create(&model.ChatSession{
		SessionId:    "session_1_abc",
		UserId:       "u1",
		Title:        "existing",
		MessageCount: 4,
	})

	rsp, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:    "u1",
		SessionId: "session_1_abc",
		Content:   "follow up",
	})
	require.NoError(t, err)
	assert.Empty(t, rsp.Title)
	require.NotEmpty(t, fx.sessions.updates)
	assert.Equal(t, 5, fx.sessions.updates[0]["message_count"])
}

func TestSendMessageSerializesFirstTurnPerSession(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{response: []byte(`{"output":"ok"}`)})
	fx.sessions.Create(&model.ChatSession{
		SessionId:    "session_1_abc",
		UserId:       "u1",
		MessageCount: 0,
	})

	// 两个并发发送只有一个走首轮分支
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
				UserId:    "u1",
				SessionId: "session_1_abc",
				Content:   "first in wins the title",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	firstTurns := 0
	for _, u := range fx.sessions.updates {
		if _, ok := u["title"]; ok {
			firstTurns++
		}
	}
	assert.Equal(t, 1, firstTurns)

	// 首轮置 2，随后一轮加 1
	session, err := fx.sessions.FindBySessionId("session_1_abc")
	require.NoError(t, err)
	assert.Equal(t, 3, session.MessageCount)
}

func TestSendMessageOwnershipEnforced(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "owner"})

	_, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:    "intruder",
		SessionId: "session_1_abc",
		Content:   "hi",
	})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeUnauthorized, errorx.GetCode(err))
}

func TestSendMessageDispatchFailureKeepsUserMessage(t *testing.T) {
	dispatchErr := errorx.New(errorx.CodeDispatchTimeout, "webhook 外呼超时")
	fx := newChatFixture(&fakeDispatcher{err: dispatchErr})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 2})

	rsp, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:    "u1",
		SessionId: "session_1_abc",
		Content:   "will fail",
	})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeDispatchTimeout, errorx.GetCode(err))

	// 乐观持久化：外呼失败但响应仍带标识，消息不丢
	require.NotNil(t, rsp)
	assert.NotEmpty(t, rsp.MessageId)
	assert.Len(t, fx.messages.messages, 1)
	assert.Equal(t, constants.SenderUser, fx.messages.messages[0].Sender)
}

func TestSendMessageConsumesPendingWebhook(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{response: []byte(`{"output":"ok"}`)})
	fx.cache.Set(context.Background(), "pending_webhook_u1", "https://n8n.local/webhook/rag", 0)

	rsp, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:  "u1",
		Content: "ask about my files",
	})
	require.NoError(t, err)

	// 待接入 webhook 绑定到新会话且消费一次即失效
	assert.Equal(t, "https://n8n.local/webhook/rag", fx.router.binds[rsp.SessionId])
	v, _ := fx.cache.Get(context.Background(), "pending_webhook_u1")
	assert.Empty(t, v)
}

func TestSendMessageExplicitWebhookBinds(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{response: []byte(`{"output":"ok"}`)})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 2})

	_, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:     "u1",
		SessionId:  "session_1_abc",
		Content:    "hi",
		WebhookUrl: "https://n8n.local/webhook/custom",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://n8n.local/webhook/custom", fx.router.binds["session_1_abc"])
	assert.Equal(t, []string{"https://n8n.local/webhook/custom"}, fx.dispatcher.urls)
}

func TestSendMessagePayloadCarriesBothKeyStyles(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{response: []byte(`{"output":"ok"}`)})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 2})

	_, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:    "u1",
		SessionId: "session_1_abc",
		Content:   "hello",
	})
	require.NoError(t, err)
	require.Len(t, fx.dispatcher.payloads, 1)
	payload := fx.dispatcher.payloads[0]

	assert.Equal(t, "sendMessage", payload["action"])
	assert.Equal(t, "session_1_abc", payload["sessionId"])
	assert.Equal(t, "session_1_abc", payload["session_id"])
	assert.Equal(t, "u1", payload["userId"])
	assert.Equal(t, "u1", payload["user_id"])
	assert.Equal(t, "hello", payload["message"])
	assert.Equal(t, "hello", payload["chatInput"])
	assert.Equal(t, "ya29.test", payload["accessToken"])
	assert.Equal(t, "ya29.test", payload["access_token"])
	assert.Equal(t, "1//refresh-test", payload["refreshToken"])
	assert.Equal(t, "Test User", payload["userName"])
	assert.Equal(t, "Test User", payload["user_name"])
	assert.Equal(t, "u@example.com", payload["userEmail"])
	assert.Equal(t, "u@example.com", payload["user_email"])
	assert.NotEmpty(t, payload["aiTimestamp"])
}

func TestSendMessageAudioVariant(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 2})

	_, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:      "u1",
		SessionId:   "session_1_abc",
		Content:     "QUJD RA==",
		MessageType: constants.MessageTypeAudio,
	})
	require.NoError(t, err)

	// 落库为归一化后的 Data URI（空格还原为 '+'）
	require.Len(t, fx.messages.messages, 1)
	assert.Equal(t, constants.MessageTypeAudio, fx.messages.messages[0].MessageType)
	assert.Equal(t, "data:audio/mpeg;base64,QUJD+RA==", fx.messages.messages[0].Content)

	// 外呼携带裸 base64，文本键不出现
	require.Len(t, fx.dispatcher.payloads, 1)
	payload := fx.dispatcher.payloads[0]
	assert.Equal(t, "QUJD+RA==", payload["audioFile"])
	assert.Equal(t, constants.MessageTypeAudio, payload["messageType"])
	_, hasChatInput := payload["chatInput"]
	assert.False(t, hasChatInput)
}

func TestSendMessageAudioFirstTurnKeepsDefaultTitle(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 0})

	rsp, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:      "u1",
		SessionId:   "session_1_abc",
		Content:     "QUJDRA==",
		MessageType: constants.MessageTypeAudio,
	})
	require.NoError(t, err)
	// base64 不适合派生标题，首发保留默认占位
	assert.Equal(t, constants.DEFAULT_TITLE, rsp.Title)
}

func TestSendMessageAudioRejectsNonBase64(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 2})

	_, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:      "u1",
		SessionId:   "session_1_abc",
		Content:     "not base64 $#@!",
		MessageType: constants.MessageTypeAudio,
	})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))
	// 归一化失败发生在落库之前，不产生消息行
	assert.Empty(t, fx.messages.messages)
}

func TestSendMessageTokenFailureOmitsToken(t *testing.T) {
	dispatcher := &fakeDispatcher{response: []byte(`{"output":"ok"}`)}
	fx := newChatFixture(dispatcher)
	fx.svc.tokens = &fakeTokens{err: errorx.ErrAuthFatal}
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 2})

	_, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:    "u1",
		SessionId: "session_1_abc",
		Content:   "hello",
	})
	require.NoError(t, err)
	require.Len(t, dispatcher.payloads, 1)
	_, hasToken := dispatcher.payloads[0]["accessToken"]
	assert.False(t, hasToken)
}

// ==================== SaveAIReply ====================

func TestSaveAIReplyPersistsAndRebinds(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1"})

	rsp, err := fx.svc.SaveAIReply(context.Background(), request.CallbackRequest{
		SessionId:  "session_1_abc",
		UserId:     "u1",
		Reply:      []byte(`[{"output":"async answer"}]`),
		WebhookUrl: "https://n8n.local/webhook/next",
	})
	require.NoError(t, err)
	assert.Equal(t, "async answer", rsp.Content)
	assert.Equal(t, constants.MessageTypeText, rsp.MessageType)

	assert.Len(t, fx.messages.messages, 1)
	assert.Equal(t, constants.SenderAi, fx.messages.messages[0].Sender)
	assert.Equal(t, []string{"session_1_abc"}, fx.sessions.touched)
	assert.Equal(t, "https://n8n.local/webhook/next", fx.router.binds["session_1_abc"])
}

func TestSaveAIReplySkipsDuplicateOfSyncReply(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{response: []byte(`[{"output":"the answer"}]`)})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "u1", MessageCount: 2})

	sent, err := fx.svc.SendMessage(context.Background(), request.SendMessageRequest{
		UserId:    "u1",
		SessionId: "session_1_abc",
		Content:   "question",
	})
	require.NoError(t, err)
	require.NotNil(t, sent.Reply)

	// 工作流同步响应之后又回调同一条回复，不得落出第二行 AI 消息
	rsp, err := fx.svc.SaveAIReply(context.Background(), request.CallbackRequest{
		SessionId: "session_1_abc",
		UserId:    "u1",
		Reply:     []byte(`[{"output":"the answer"}]`),
	})
	require.NoError(t, err)
	assert.Equal(t, sent.Reply.MessageId, rsp.MessageId)
	assert.Len(t, fx.messages.messages, 2)

	// 内容不同的回调正常落库
	rsp, err = fx.svc.SaveAIReply(context.Background(), request.CallbackRequest{
		SessionId: "session_1_abc",
		UserId:    "u1",
		Reply:     []byte(`[{"output":"a follow-up"}]`),
	})
	require.NoError(t, err)
	assert.NotEqual(t, sent.Reply.MessageId, rsp.MessageId)
	assert.Len(t, fx.messages.messages, 3)
}

func TestSaveAIReplyRejectsMismatchedUser(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "owner"})

	_, err := fx.svc.SaveAIReply(context.Background(), request.CallbackRequest{
		SessionId: "session_1_abc",
		UserId:    "someone-else",
		Reply:     []byte(`{"output":"x"}`),
	})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeUnauthorized, errorx.GetCode(err))
}

// ==================== 列表查询 ====================

func TestGetMessageListOwnership(t *testing.T) {
	fx := newChatFixture(&fakeDispatcher{})
	fx.sessions.Create(&model.ChatSession{SessionId: "session_1_abc", UserId: "owner"})

	_, err := fx.svc.GetMessageList(request.OpenSessionRequest{
		UserId:    "intruder",
		SessionId: "session_1_abc",
	})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeUnauthorized, errorx.GetCode(err))
}
