package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nevermiss_server/internal/dao/mysql"
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/model"
	"nevermiss_server/internal/service/realtime"
	"nevermiss_server/pkg/constants"
	"nevermiss_server/pkg/errorx"
)

// fakeNotificationRepo 内存通知仓库
type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications map[string]*model.Notification
	created       int
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{notifications: make(map[string]*model.Notification)}
}

func (f *fakeNotificationRepo) FindActiveByUserId(userId string) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []model.Notification
	now := time.Now()
	for _, n := range f.notifications {
		if n.UserId != userId {
			continue
		}
		if !n.ExpiresAt.Valid || n.ExpiresAt.Time.After(now) {
			list = append(list, *n)
		}
	}
	return list, nil
}

func (f *fakeNotificationRepo) FindHistoryByUserId(userId string, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []model.Notification
	now := time.Now()
	for _, n := range f.notifications {
		if n.UserId != userId {
			continue
		}
		if n.ExpiresAt.Valid && !n.ExpiresAt.Time.After(now) {
			list = append(list, *n)
		}
	}
	return list, nil
}

func (f *fakeNotificationRepo) FindByNotifyId(notifyId string) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notifications[notifyId]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, errorx.New(errorx.CodeNotFound, "通知不存在")
}

func (f *fakeNotificationRepo) Create(notification *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	cp := *notification
	f.notifications[notification.NotifyId] = &cp
	return nil
}

func (f *fakeNotificationRepo) UpdateStatus(notifyId string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[notifyId]
	if !ok {
		return errorx.New(errorx.CodeNotFound, "通知不存在")
	}
	if status, ok := updates["status"].(string); ok {
		n.Status = status
	}
	if content, ok := updates["content"].(string); ok {
		n.Content = content
	}
	if redirect, ok := updates["redirect_url"].(string); ok {
		n.RedirectURL = redirect
	}
	if expiresAt, ok := updates["expires_at"].(time.Time); ok {
		n.ExpiresAt.Time = expiresAt
		n.ExpiresAt.Valid = true
	}
	return nil
}

func (f *fakeNotificationRepo) MarkRead(notifyId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notifications[notifyId]; ok {
		n.Read = true
	}
	return nil
}

func (f *fakeNotificationRepo) SoftDeleteHistoryByUserId(userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for id, n := range f.notifications {
		if n.UserId == userId && n.ExpiresAt.Valid && !n.ExpiresAt.Time.After(now) {
			delete(f.notifications, id)
		}
	}
	return nil
}

// fakeCache 内存缓存，带去重集合
type fakeCache struct {
	mu       sync.Mutex
	data     map[string]string
	sets     map[string]map[string]struct{}
	dedupErr error
	lastTTLs map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data:     make(map[string]string),
		sets:     make(map[string]map[string]struct{}),
		lastTTLs: make(map[string]time.Duration),
	}
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.lastTTLs[key] = ttl
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeCache) GetOrError(ctx context.Context, key string) (string, error) {
	return f.Get(ctx, key)
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
	delete(f.sets, key)
	return nil
}

func (f *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error     { return nil }
func (f *fakeCache) DeleteByPatterns(ctx context.Context, patterns []string) error { return nil }

func (f *fakeCache) AddToSetIfAbsent(ctx context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dedupErr != nil {
		return false, f.dedupErr
	}
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	if _, ok := f.sets[key][member]; ok {
		return false, nil
	}
	f.sets[key][member] = struct{}{}
	return true, nil
}

func (f *fakeCache) GetSetMembers(ctx context.Context, key string) ([]string, error) { return nil, nil }
func (f *fakeCache) RemoveFromSet(ctx context.Context, key string, members ...interface{}) error {
	return nil
}
func (f *fakeCache) SubmitTask(action func()) { action() }

func noBroker() realtime.MessageBroker { return nil }

func newFixture() (*notifyService, *fakeNotificationRepo, *fakeCache) {
	repo := newFakeNotificationRepo()
	cache := newFakeCache()
	repos := &mysql.Repositories{Notification: repo}
	svc := NewNotifyService(repos, cache, noBroker)
	return svc, repo, cache
}

func TestInsertCreatesNotification(t *testing.T) {
	svc, repo, _ := newFixture()

	rsp, err := svc.Insert(context.Background(), request.InsertNotificationRequest{
		UserId:  "u1",
		Title:   "Processing your files",
		Content: "working on it",
		Status:  constants.NotifyPending,
		Source:  constants.NotifySourceFileProcessing,
	})
	require.NoError(t, err)
	require.NotNil(t, rsp)
	assert.NotEmpty(t, rsp.NotifyId)
	assert.Equal(t, constants.NotifyPending, rsp.Status)
	assert.Equal(t, 1, repo.created)
}

func TestInsertDefaultsToInfo(t *testing.T) {
	svc, _, _ := newFixture()
	rsp, err := svc.Insert(context.Background(), request.InsertNotificationRequest{
		UserId: "u1",
		Title:  "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.NotifyInfo, rsp.Status)
}

func TestInsertDedupSecondInsertIgnored(t *testing.T) {
	svc, repo, _ := newFixture()
	req := request.InsertNotificationRequest{
		UserId:   "u1",
		Title:    "batch done",
		DedupKey: "rag_1_abc",
	}

	first, err := svc.Insert(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, first)

	// 相同 dedupKey 重复插入返回 nil 且不报错
	second, err := svc.Insert(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, repo.created)
}

func TestInsertDedupFailureAllowsInsert(t *testing.T) {
	svc, repo, cache := newFixture()
	cache.dedupErr = errorx.New(errorx.CodeCacheError, "redis down")

	// 去重集合不可用时放行插入，宁可重复不可丢失
	rsp, err := svc.Insert(context.Background(), request.InsertNotificationRequest{
		UserId:   "u1",
		Title:    "x",
		DedupKey: "k",
	})
	require.NoError(t, err)
	require.NotNil(t, rsp)
	assert.Equal(t, 1, repo.created)
}

func TestInsertWithTTLSetsExpiry(t *testing.T) {
	svc, repo, _ := newFixture()
	rsp, err := svc.Insert(context.Background(), request.InsertNotificationRequest{
		UserId:     "u1",
		Title:      "expiring",
		TTLSeconds: 3600,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rsp.ExpiresAt)

	stored, err := repo.FindByNotifyId(rsp.NotifyId)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Valid)
}

func TestUpdateAdvancesStatus(t *testing.T) {
	svc, _, _ := newFixture()
	created, err := svc.Insert(context.Background(), request.InsertNotificationRequest{
		UserId: "u1",
		Title:  "progress",
		Status: constants.NotifyPending,
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), request.UpdateNotificationRequest{
		NotifyId:   created.NotifyId,
		Status:     constants.NotifyCompleted,
		Content:    "all done",
		TTLSeconds: 86400,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.NotifyCompleted, updated.Status)
	assert.Equal(t, "all done", updated.Content)
	assert.NotEmpty(t, updated.ExpiresAt)
}

func TestListSplitsActiveAndHistory(t *testing.T) {
	svc, repo, _ := newFixture()
	repo.Create(&model.Notification{NotifyId: "n1", UserId: "u1", Title: "active"})
	expired := &model.Notification{NotifyId: "n2", UserId: "u1", Title: "old"}
	expired.ExpiresAt.Time = time.Now().Add(-time.Hour)
	expired.ExpiresAt.Valid = true
	repo.Create(expired)

	rsp, err := svc.List("u1")
	require.NoError(t, err)
	require.Len(t, rsp.Active, 1)
	require.Len(t, rsp.History, 1)
	assert.Equal(t, "active", rsp.Active[0].Title)
	assert.Equal(t, "old", rsp.History[0].Title)
}

func TestDismissMovesToHistory(t *testing.T) {
	svc, repo, _ := newFixture()
	repo.Create(&model.Notification{NotifyId: "n1", UserId: "u1", Title: "active"})

	require.NoError(t, svc.Dismiss("n1"))

	// 行不删除，立即过期转入历史
	rsp, err := svc.List("u1")
	require.NoError(t, err)
	assert.Empty(t, rsp.Active)
	require.Len(t, rsp.History, 1)
	assert.Equal(t, "active", rsp.History[0].Title)
}

func TestClearHistoryRemovesExpiredOnly(t *testing.T) {
	svc, repo, cache := newFixture()
	repo.Create(&model.Notification{NotifyId: "n1", UserId: "u1", Title: "active"})
	expired := &model.Notification{NotifyId: "n2", UserId: "u1", Title: "old"}
	expired.ExpiresAt.Time = time.Now().Add(-time.Hour)
	expired.ExpiresAt.Valid = true
	repo.Create(expired)
	cache.sets["notify_dedup_u1"] = map[string]struct{}{"job-1": {}}

	require.NoError(t, svc.ClearHistory(context.Background(), "u1"))

	rsp, err := svc.List("u1")
	require.NoError(t, err)
	assert.Len(t, rsp.Active, 1)
	assert.Empty(t, rsp.History)

	// 历史清空后同任务可重新去重通知
	fresh, err := cache.AddToSetIfAbsent(context.Background(), "notify_dedup_u1", "job-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestResolveRedirectHandsOffPendingWebhook(t *testing.T) {
	svc, repo, cache := newFixture()
	repo.Create(&model.Notification{
		NotifyId:  "n1",
		UserId:    "u1",
		Title:     "files ready",
		Status:    constants.NotifyCompleted,
		Source:    constants.NotifySourceFileProcessing,
		SessionId: "rag_1_abc",
	})
	cache.Set(context.Background(), "webhook_binding_rag_1_abc", "https://n8n.local/webhook/rag", 0)

	redirect, err := svc.ResolveRedirect(context.Background(), "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "/chat", redirect)

	// 批次绑定转存为用户的待接入 webhook，带 24 小时时效
	pending, _ := cache.Get(context.Background(), "pending_webhook_u1")
	assert.Equal(t, "https://n8n.local/webhook/rag", pending)
	assert.Equal(t, 24*time.Hour, cache.lastTTLs["pending_webhook_u1"])

	// 点击即已读
	stored, err := repo.FindByNotifyId("n1")
	require.NoError(t, err)
	assert.True(t, stored.Read)
}

func TestResolveRedirectExplicitURLWins(t *testing.T) {
	svc, repo, _ := newFixture()
	repo.Create(&model.Notification{
		NotifyId:    "n1",
		UserId:      "u1",
		Title:       "custom",
		RedirectURL: "/settings",
	})

	redirect, err := svc.ResolveRedirect(context.Background(), "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "/settings", redirect)
}

func TestResolveRedirectMatchesFeatureKeyword(t *testing.T) {
	svc, repo, _ := newFixture()
	repo.Create(&model.Notification{
		NotifyId: "n1",
		UserId:   "u1",
		Title:    "Your Study Guide is ready",
	})
	repo.Create(&model.Notification{
		NotifyId: "n2",
		UserId:   "u1",
		Title:    "reminder",
		Content:  "new university application tips available",
	})

	// 无显式 redirect_url 时按标题/正文关键字推导功能区
	redirect, err := svc.ResolveRedirect(context.Background(), "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "/study-guide", redirect)

	redirect, err = svc.ResolveRedirect(context.Background(), "u1", "n2")
	require.NoError(t, err)
	assert.Equal(t, "/university-guide", redirect)
}

func TestResolveRedirectOwnership(t *testing.T) {
	svc, repo, _ := newFixture()
	repo.Create(&model.Notification{NotifyId: "n1", UserId: "owner", Title: "x"})

	_, err := svc.ResolveRedirect(context.Background(), "intruder", "n1")
	require.Error(t, err)
	assert.Equal(t, errorx.CodeUnauthorized, errorx.GetCode(err))
}

func TestResolveRedirectDefaultRoot(t *testing.T) {
	svc, repo, _ := newFixture()
	repo.Create(&model.Notification{NotifyId: "n1", UserId: "u1", Title: "plain"})

	redirect, err := svc.ResolveRedirect(context.Background(), "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "/", redirect)
}
