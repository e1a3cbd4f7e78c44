// Package notify 实现通知中心
// 活跃/历史双列表由活跃期截止时间划分；插入按用户级 Redis 集合去重，
// SAdd 的原子性保证并发插入只落一条
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nevermiss_server/internal/dao/mysql"
	myredis "nevermiss_server/internal/dao/redis"
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/dto/respond"
	"nevermiss_server/internal/model"
	"nevermiss_server/internal/service/realtime"
	"nevermiss_server/pkg/constants"
	"nevermiss_server/pkg/errorx"
)

// dedupKeyFor 用户级去重集合的 Redis 键
func dedupKeyFor(userId string) string {
	return "notify_dedup_" + userId
}

// pendingWebhookKeyFor 待接入 webhook 的 Redis 键
func pendingWebhookKeyFor(userId string) string {
	return "pending_webhook_" + userId
}

// bindingKeyFor 会话级 webhook 绑定的 Redis 键，与路由层一致
func bindingKeyFor(sessionId string) string {
	return "webhook_binding_" + sessionId
}

// notifyService 通知业务逻辑实现
type notifyService struct {
	repos  *mysql.Repositories
	cache  myredis.AsyncCacheService
	broker func() realtime.MessageBroker
}

// NewNotifyService 构造函数，注入所有依赖
func NewNotifyService(
	repos *mysql.Repositories,
	cacheService myredis.AsyncCacheService,
	brokerFn func() realtime.MessageBroker,
) *notifyService {
	return &notifyService{
		repos:  repos,
		cache:  cacheService,
		broker: brokerFn,
	}
}

// Insert 插入通知
// dedupKey 非空时先过用户级去重集合，重复插入返回 nil 且不报错
func (s *notifyService) Insert(ctx context.Context, req request.InsertNotificationRequest) (*respond.NotificationRespond, error) {
	if req.DedupKey != "" {
		fresh, err := s.cache.AddToSetIfAbsent(ctx, dedupKeyFor(req.UserId), req.DedupKey)
		if err != nil {
			// 去重集合不可用时放行插入，宁可重复不可丢失
			zap.L().Warn("通知去重检查失败，放行插入",
				zap.String("user_id", req.UserId), zap.Error(err))
		} else if !fresh {
			zap.L().Info("通知重复插入被忽略",
				zap.String("user_id", req.UserId), zap.String("dedup_key", req.DedupKey))
			return nil, nil
		}
	}

	status := req.Status
	if status == "" {
		status = constants.NotifyInfo
	}

	notification := &model.Notification{
		NotifyId:    uuid.NewString(),
		UserId:      req.UserId,
		Title:       req.Title,
		Content:     req.Content,
		Status:      status,
		Source:      req.Source,
		SessionId:   req.SessionId,
		RedirectURL: req.RedirectUrl,
	}
	if req.TTLSeconds > 0 {
		notification.ExpiresAt = sql.NullTime{
			Time:  time.Now().Add(time.Duration(req.TTLSeconds) * time.Second),
			Valid: true,
		}
	}

	if err := s.repos.Notification.Create(notification); err != nil {
		zap.L().Error("插入通知失败", zap.String("user_id", req.UserId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	rsp := toRespond(notification)
	s.publish(req.UserId, rsp)
	return &rsp, nil
}

// Update 更新通知状态与正文
// 后台任务进度推进时原地更新同一条通知，并重新推送
func (s *notifyService) Update(ctx context.Context, req request.UpdateNotificationRequest) (*respond.NotificationRespond, error) {
	updates := map[string]interface{}{
		"status": req.Status,
	}
	if req.Content != "" {
		updates["content"] = req.Content
	}
	if req.RedirectUrl != "" {
		updates["redirect_url"] = req.RedirectUrl
	}
	if req.TTLSeconds > 0 {
		updates["expires_at"] = time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
	}

	if err := s.repos.Notification.UpdateStatus(req.NotifyId, updates); err != nil {
		zap.L().Error("更新通知失败", zap.String("notify_id", req.NotifyId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	notification, err := s.repos.Notification.FindByNotifyId(req.NotifyId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.New(errorx.CodeNotFound, "通知不存在")
		}
		return nil, errorx.ErrServerBusy
	}

	rsp := toRespond(notification)
	s.publish(notification.UserId, rsp)
	return &rsp, nil
}

// List 拉取通知中心视图：活跃 + 历史
func (s *notifyService) List(userId string) (*respond.NotificationListRespond, error) {
	active, err := s.repos.Notification.FindActiveByUserId(userId)
	if err != nil {
		zap.L().Error("查询活跃通知失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	history, err := s.repos.Notification.FindHistoryByUserId(userId, 50)
	if err != nil {
		zap.L().Error("查询历史通知失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	rsp := &respond.NotificationListRespond{
		Active:  make([]respond.NotificationRespond, 0, len(active)),
		History: make([]respond.NotificationRespond, 0, len(history)),
	}
	for i := range active {
		rsp.Active = append(rsp.Active, toRespond(&active[i]))
	}
	for i := range history {
		rsp.History = append(rsp.History, toRespond(&history[i]))
	}
	return rsp, nil
}

// MarkRead 标记通知已读
func (s *notifyService) MarkRead(req request.MarkReadRequest) error {
	if err := s.repos.Notification.MarkRead(req.NotifyId); err != nil {
		zap.L().Error("标记已读失败", zap.String("notify_id", req.NotifyId), zap.Error(err))
		return errorx.ErrServerBusy
	}
	return nil
}

// Dismiss 把通知从活跃列表移除
// 行本身保留，立即过期进入历史；历史只能通过 ClearHistory 整体清空
func (s *notifyService) Dismiss(notifyId string) error {
	if err := s.repos.Notification.UpdateStatus(notifyId, map[string]interface{}{
		"expires_at": time.Now(),
	}); err != nil {
		zap.L().Error("移除活跃通知失败", zap.String("notify_id", notifyId), zap.Error(err))
		return errorx.ErrServerBusy
	}
	return nil
}

// ClearHistory 清空用户的历史通知
// 同时清掉去重集合，后续同任务的完成事件可以重新通知
func (s *notifyService) ClearHistory(ctx context.Context, userId string) error {
	if err := s.repos.Notification.SoftDeleteHistoryByUserId(userId); err != nil {
		zap.L().Error("清空历史通知失败", zap.String("user_id", userId), zap.Error(err))
		return errorx.ErrServerBusy
	}
	if err := s.cache.Delete(ctx, dedupKeyFor(userId)); err != nil {
		zap.L().Warn("清理通知去重集合失败", zap.String("user_id", userId), zap.Error(err))
	}
	return nil
}

// ResolveRedirect 处理通知点击
// 1. 标记已读
// 2. 文件摄取完成的通知把批次会话的 webhook 绑定转存为用户的
//    待接入 webhook，下一个新会话自动接上
// 3. 返回跳转目标：显式 redirect_url 优先，其次按文案关键字匹配
//    功能区，最后按来源兜底
func (s *notifyService) ResolveRedirect(ctx context.Context, userId, notifyId string) (string, error) {
	notification, err := s.repos.Notification.FindByNotifyId(notifyId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return "", errorx.New(errorx.CodeNotFound, "通知不存在")
		}
		return "", errorx.ErrServerBusy
	}
	if notification.UserId != userId {
		return "", errorx.New(errorx.CodeUnauthorized, "通知不属于当前用户")
	}

	if err := s.repos.Notification.MarkRead(notifyId); err != nil {
		zap.L().Warn("标记已读失败", zap.String("notify_id", notifyId), zap.Error(err))
	}

	// 摄取完成的通知：转存待接入 webhook
	if notification.Source == constants.NotifySourceFileProcessing &&
		notification.Status == constants.NotifyCompleted &&
		notification.SessionId != "" {
		bound, err := s.cache.Get(ctx, bindingKeyFor(notification.SessionId))
		if err != nil {
			zap.L().Warn("读取批次绑定失败", zap.String("session_id", notification.SessionId), zap.Error(err))
		} else if bound != "" {
			// 24 小时内未消费则自动失效
			if err := s.cache.Set(ctx, pendingWebhookKeyFor(userId), bound, 24*time.Hour); err != nil {
				zap.L().Warn("写入待接入 webhook 失败", zap.String("user_id", userId), zap.Error(err))
			}
		}
	}

	// 显式跳转地址 > 文案关键字匹配 > 按来源兜底
	if notification.RedirectURL != "" {
		return notification.RedirectURL, nil
	}
	if route := featureRouteFor(notification.Title + " " + notification.Content); route != "" {
		return route, nil
	}
	if notification.Source == constants.NotifySourceFileProcessing {
		return "/chat", nil
	}
	return "/", nil
}

// featureRouteFor 按通知文案匹配功能区跳转目标，未命中返回空串
func featureRouteFor(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "study"):
		return "/study-guide"
	case strings.Contains(lower, "university"):
		return "/university-guide"
	}
	return ""
}

// publish 把通知变更推送到实时层
func (s *notifyService) publish(userId string, rsp respond.NotificationRespond) {
	broker := s.broker()
	if broker == nil {
		return
	}
	payload, _ := json.Marshal(rsp)
	event := &realtime.Event{
		Kind:    realtime.EventNotification,
		UserId:  userId,
		Payload: payload,
	}
	if err := broker.Publish(context.Background(), event); err != nil {
		zap.L().Error("推送通知失败", zap.String("user_id", userId), zap.Error(err))
	}
}

// toRespond 模型转响应
func toRespond(n *model.Notification) respond.NotificationRespond {
	rsp := respond.NotificationRespond{
		NotifyId:    n.NotifyId,
		Title:       n.Title,
		Content:     n.Content,
		Status:      n.Status,
		Source:      n.Source,
		SessionId:   n.SessionId,
		RedirectUrl: n.RedirectURL,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if n.ExpiresAt.Valid {
		rsp.ExpiresAt = n.ExpiresAt.Time.Format("2006-01-02 15:04:05")
	}
	return rsp
}
