package webhookrouter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nevermiss_server/internal/config"
	"nevermiss_server/internal/dao/mysql"
	"nevermiss_server/internal/model"
	"nevermiss_server/pkg/constants"
	"nevermiss_server/pkg/errorx"
)

// fakeSessionRepo 内存会话仓库
// schemaMismatch 打开时模拟存量库缺列
type fakeSessionRepo struct {
	mu             sync.Mutex
	sessions       map[string]*model.ChatSession
	schemaMismatch bool
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
	return nil, nil
}

func (f *fakeSessionRepo) Create(session *model.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *session
	f.sessions[session.SessionId] = &cp
	return nil
}

func (f *fakeSessionRepo) UpdateMeta(sessionId string, updates map[string]interface{}) error {
	return nil
}

func (f *fakeSessionRepo) Touch(sessionId string) error { return nil }

func (f *fakeSessionRepo) UpdateWebhookURL(sessionId, webhookURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.schemaMismatch {
		return errorx.New(errorx.CodeSchemaMismatch, "会话表缺少 webhook_url 列")
	}
	if s, ok := f.sessions[sessionId]; ok {
		s.WebhookURL = webhookURL
		return nil
	}
	return errorx.New(errorx.CodeNotFound, "会话不存在")
}

func (f *fakeSessionRepo) SoftDeleteBySessionId(sessionId string) error { return nil }

// fakeCache 内存缓存
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
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

func (f *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error      { return nil }
func (f *fakeCache) DeleteByPatterns(ctx context.Context, patterns []string) error  { return nil }
func (f *fakeCache) AddToSetIfAbsent(ctx context.Context, key, member string) (bool, error) {
	return true, nil
}
func (f *fakeCache) GetSetMembers(ctx context.Context, key string) ([]string, error) { return nil, nil }
func (f *fakeCache) RemoveFromSet(ctx context.Context, key string, members ...interface{}) error {
	return nil
}

var testN8NConfig = config.N8NConfig{
	PlanWebhook:            "https://n8n.local/webhook/plan",
	StudyGuideWebhook:      "https://n8n.local/webhook/study",
	UniversityGuideWebhook: "https://n8n.local/webhook/university",
}

func newFixture() (*routerService, *fakeSessionRepo, *fakeCache) {
	sessions := newFakeSessionRepo()
	cache := newFakeCache()
	repos := &mysql.Repositories{Session: sessions}
	svc := NewRouterService(repos, cache, &testN8NConfig)
	return svc, sessions, cache
}

func TestResolveColumnBindingWins(t *testing.T) {
	svc, sessions, cache := newFixture()
	sessions.Create(&model.ChatSession{
		SessionId:  "session_1_abc",
		WebhookURL: "https://n8n.local/webhook/column",
	})
	cache.Set(context.Background(), "webhook_binding_session_1_abc", "https://n8n.local/webhook/redis", 0)

	got := svc.Resolve(context.Background(), "session_1_abc", constants.FeaturePlan)
	assert.Equal(t, "https://n8n.local/webhook/column", got)
}

func TestResolveFallsBackToRedisBinding(t *testing.T) {
	svc, sessions, cache := newFixture()
	sessions.Create(&model.ChatSession{SessionId: "session_1_abc"})
	cache.Set(context.Background(), "webhook_binding_session_1_abc", "https://n8n.local/webhook/redis", 0)

	got := svc.Resolve(context.Background(), "session_1_abc", constants.FeaturePlan)
	assert.Equal(t, "https://n8n.local/webhook/redis", got)
}

func TestResolveFeatureDefaults(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()

	assert.Equal(t, testN8NConfig.PlanWebhook, svc.Resolve(ctx, "", constants.FeaturePlan))
	assert.Equal(t, testN8NConfig.StudyGuideWebhook, svc.Resolve(ctx, "", constants.FeatureStudyGuide))
	assert.Equal(t, testN8NConfig.UniversityGuideWebhook, svc.Resolve(ctx, "", constants.FeatureUniversityGuide))
	// 未识别的功能区按通用聊天处理
	assert.Equal(t, testN8NConfig.PlanWebhook, svc.Resolve(ctx, "", "unknown_feature"))
}

func TestResolveUnknownSessionFallsThrough(t *testing.T) {
	svc, _, _ := newFixture()
	got := svc.Resolve(context.Background(), "session_missing", constants.FeatureStudyGuide)
	assert.Equal(t, testN8NConfig.StudyGuideWebhook, got)
}

func TestBindWritesBothLayers(t *testing.T) {
	svc, sessions, cache := newFixture()
	sessions.Create(&model.ChatSession{SessionId: "session_1_abc"})

	err := svc.Bind(context.Background(), "session_1_abc", "https://n8n.local/webhook/bound")
	require.NoError(t, err)

	s, _ := sessions.FindBySessionId("session_1_abc")
	assert.Equal(t, "https://n8n.local/webhook/bound", s.WebhookURL)
	bound, _ := cache.Get(context.Background(), "webhook_binding_session_1_abc")
	assert.Equal(t, "https://n8n.local/webhook/bound", bound)
}

func TestBindSchemaMismatchDegradesToCache(t *testing.T) {
	svc, sessions, cache := newFixture()
	sessions.schemaMismatch = true
	sessions.Create(&model.ChatSession{SessionId: "session_1_abc"})

	// 缺列不算失败，Redis 绑定兜底
	err := svc.Bind(context.Background(), "session_1_abc", "https://n8n.local/webhook/bound")
	require.NoError(t, err)

	bound, _ := cache.Get(context.Background(), "webhook_binding_session_1_abc")
	assert.Equal(t, "https://n8n.local/webhook/bound", bound)
}

func TestBindUnknownSession(t *testing.T) {
	svc, _, _ := newFixture()
	err := svc.Bind(context.Background(), "session_missing", "https://n8n.local/webhook/bound")
	require.Error(t, err)
	assert.Equal(t, errorx.CodeNotFound, errorx.GetCode(err))
}

func TestBindRejectsEmptyArgs(t *testing.T) {
	svc, _, _ := newFixture()
	assert.Error(t, svc.Bind(context.Background(), "", "https://x"))
	assert.Error(t, svc.Bind(context.Background(), "session_1_abc", ""))
}

func TestUnbindClearsBothLayers(t *testing.T) {
	svc, sessions, cache := newFixture()
	sessions.Create(&model.ChatSession{SessionId: "session_1_abc", WebhookURL: "https://x"})
	cache.Set(context.Background(), "webhook_binding_session_1_abc", "https://x", 0)

	require.NoError(t, svc.Unbind(context.Background(), "session_1_abc"))

	s, _ := sessions.FindBySessionId("session_1_abc")
	assert.Empty(t, s.WebhookURL)
	bound, _ := cache.Get(context.Background(), "webhook_binding_session_1_abc")
	assert.Empty(t, bound)
}
