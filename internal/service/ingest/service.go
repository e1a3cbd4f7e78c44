// Package ingest 实现知识库文件摄取
// 批次内文件并发上传（上限 3 路），全部完成后向工作流发出收尾调用；
// 进度通过通知中心同步，批次标识以 rag_ 开头与聊天会话区分
package ingest

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	myredis "nevermiss_server/internal/dao/redis"
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/dto/respond"
	"nevermiss_server/internal/infrastructure/n8n"
	"nevermiss_server/pkg/constants"
	"nevermiss_server/pkg/errorx"
	"nevermiss_server/pkg/util/random"
)

// uploadConcurrency 单批次的并发上传上限
const uploadConcurrency = 3

// allowedExtensions 可摄取的文件类型
var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".txt":  {},
	".md":   {},
	".doc":  {},
	".docx": {},
	".csv":  {},
}

// NotifyCenter 通知中心的最小依赖面
type NotifyCenter interface {
	Insert(ctx context.Context, req request.InsertNotificationRequest) (*respond.NotificationRespond, error)
	Update(ctx context.Context, req request.UpdateNotificationRequest) (*respond.NotificationRespond, error)
}

// Uploader 摄取外呼的最小依赖面
type Uploader interface {
	UploadFiles(ctx context.Context, webhookURL, sessionId, userId string, files []n8n.UploadFile) ([]byte, error)
	Dispatch(ctx context.Context, webhookURL string, payload any) ([]byte, error)
}

// ingestService 摄取业务逻辑实现
type ingestService struct {
	cache         myredis.AsyncCacheService
	uploader      Uploader
	notify        NotifyCenter
	ingestWebhook string
}

// NewIngestService 构造函数，注入所有依赖
func NewIngestService(
	cacheService myredis.AsyncCacheService,
	uploader Uploader,
	notify NotifyCenter,
	ingestWebhook string,
) *ingestService {
	return &ingestService{
		cache:         cacheService,
		uploader:      uploader,
		notify:        notify,
		ingestWebhook: ingestWebhook,
	}
}

// finalizeResult 收尾调用的返回，工作流可下发后续聊天用的 webhook
type finalizeResult struct {
	WebhookUrl string `json:"webhookUrl"`
}

// Upload 受理一个摄取批次
// 1. 按扩展名过滤文件
// 2. 创建 pending 进度通知
// 3. 并发上传，全部结束后收尾
// 4. 通知翻转为 completed/error，收尾返回的 webhook 绑定到批次
func (s *ingestService) Upload(ctx context.Context, userId string, files []n8n.UploadFile) (*respond.IngestRespond, error) {
	if len(files) == 0 {
		return nil, errorx.New(errorx.CodeInvalidParam, "没有可上传的文件")
	}

	accepted := make([]n8n.UploadFile, 0, len(files))
	rsp := &respond.IngestRespond{
		SessionId: random.NewIngestSessionId(),
		Accepted:  []string{},
		Rejected:  []string{},
	}
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if _, ok := allowedExtensions[ext]; !ok {
			rsp.Rejected = append(rsp.Rejected, f.Name)
			continue
		}
		accepted = append(accepted, f)
		rsp.Accepted = append(rsp.Accepted, f.Name)
	}
	if len(accepted) == 0 {
		return nil, errorx.New(errorx.CodeInvalidParam, "所有文件类型均不受支持")
	}

	notification, err := s.notify.Insert(ctx, request.InsertNotificationRequest{
		UserId:    userId,
		Title:     "Processing your files",
		Content:   "Your documents are being processed.",
		Status:    constants.NotifyPending,
		Source:    constants.NotifySourceFileProcessing,
		SessionId: rsp.SessionId,
		DedupKey:  rsp.SessionId,
	})
	if err != nil {
		return nil, err
	}
	if notification != nil {
		rsp.NotifyId = notification.NotifyId
	}

	// 并发上传，信号量限制并发路数
	sem := make(chan struct{}, uploadConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var uploadErr error

	for _, f := range accepted {
		wg.Add(1)
		sem <- struct{}{}
		go func(file n8n.UploadFile) {
			defer wg.Done()
			defer func() { <-sem }()
			_, err := s.uploader.UploadFiles(ctx, s.ingestWebhook, rsp.SessionId, userId,
				[]n8n.UploadFile{file})
			if err != nil {
				zap.L().Error("文件上传失败",
					zap.String("session_id", rsp.SessionId),
					zap.String("file", file.Name),
					zap.Error(err))
				mu.Lock()
				if uploadErr == nil {
					uploadErr = err
				}
				mu.Unlock()
			}
		}(f)
	}
	wg.Wait()

	if uploadErr != nil {
		s.flipNotification(ctx, rsp.NotifyId, constants.NotifyError,
			"Some files could not be processed. Please try again.")
		return rsp, uploadErr
	}

	// 收尾调用：告知工作流批次已传完
	raw, err := s.uploader.Dispatch(ctx, s.ingestWebhook, map[string]any{
		"action":     "finalize",
		"sessionId":  rsp.SessionId,
		"session_id": rsp.SessionId,
		"userId":     userId,
		"user_id":    userId,
		"files":      rsp.Accepted,
	})
	if err != nil {
		zap.L().Error("摄取收尾失败", zap.String("session_id", rsp.SessionId), zap.Error(err))
		s.flipNotification(ctx, rsp.NotifyId, constants.NotifyError,
			"File processing could not be completed.")
		return rsp, err
	}

	// 工作流可下发后续聊天用的 webhook，绑定到批次供点击通知时接入
	var result finalizeResult
	if err := json.Unmarshal(raw, &result); err == nil && result.WebhookUrl != "" {
		if err := s.cache.Set(ctx, "webhook_binding_"+rsp.SessionId, result.WebhookUrl, 0); err != nil {
			zap.L().Warn("写入批次绑定失败", zap.String("session_id", rsp.SessionId), zap.Error(err))
		}
	}

	s.flipNotification(ctx, rsp.NotifyId, constants.NotifyCompleted,
		"Your documents are ready. Start a new chat to ask about them.")
	return rsp, nil
}

// flipNotification 翻转进度通知状态，completed/error 进入 24 小时活跃期
func (s *ingestService) flipNotification(ctx context.Context, notifyId, status, content string) {
	if notifyId == "" {
		return
	}
	if _, err := s.notify.Update(ctx, request.UpdateNotificationRequest{
		NotifyId:   notifyId,
		Status:     status,
		Content:    content,
		TTLSeconds: 24 * 60 * 60,
	}); err != nil {
		zap.L().Error("更新进度通知失败", zap.String("notify_id", notifyId), zap.Error(err))
	}
}
