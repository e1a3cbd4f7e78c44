// Package n8n 封装对 n8n 工作流的外呼
// 所有外呼统一走 30 秒上限，失败按超时/网络/远端拒绝三类归因
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"nevermiss_server/internal/config"
	"nevermiss_server/pkg/errorx"
)

// Client n8n 外呼客户端
type Client struct {
	httpClient   *http.Client
	ingestClient *http.Client
	apiKey       string
}

// NewClient 根据配置构造客户端
// 普通消息外呼与文件摄取使用不同的超时上限
func NewClient(cfg *config.N8NConfig) *Client {
	dispatchTimeout := time.Duration(cfg.DispatchTimeout) * time.Second
	if dispatchTimeout <= 0 {
		dispatchTimeout = 30 * time.Second
	}
	ingestTimeout := time.Duration(cfg.IngestTimeout) * time.Second
	if ingestTimeout <= 0 {
		ingestTimeout = 120 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: dispatchTimeout},
		ingestClient: &http.Client{Timeout: ingestTimeout},
		apiKey:       cfg.APIKey,
	}
}

// Dispatch 向指定 webhook 投递 JSON 负载，返回原始响应体
// 错误分类：
//   - CodeDispatchTimeout  超过时限仍无响应
//   - CodeDispatchNetwork  连接建立失败等网络层错误
//   - CodeDispatchRejected 远端返回非 2xx
func (c *Client) Dispatch(ctx context.Context, webhookURL string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeInvalidParam, "负载序列化失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDispatchNetwork, "构造外呼请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, webhookURL)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDispatchNetwork, "读取外呼响应失败")
	}

	zap.L().Info("webhook dispatched",
		zap.String("url", webhookURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("cost", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, errorx.Newf(errorx.CodeDispatchRejected,
			"webhook 返回异常状态 %d", resp.StatusCode)
	}
	return raw, nil
}

// UploadFiles 以 multipart 形式向摄取 webhook 上传一批文件
// 每个文件附带 sessionId 与 userId 字段，供工作流侧关联批次
func (c *Client) UploadFiles(ctx context.Context, webhookURL, sessionId, userId string, files []UploadFile) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("sessionId", sessionId); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "构造上传表单失败")
	}
	if err := writer.WriteField("userId", userId); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "构造上传表单失败")
	}
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.CodeServerBusy, "构造上传表单失败")
		}
		if _, err = part.Write(f.Content); err != nil {
			return nil, errorx.Wrap(err, errorx.CodeServerBusy, "写入上传内容失败")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "构造上传表单失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, &buf)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDispatchNetwork, "构造上传请求失败")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.ingestClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, webhookURL)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDispatchNetwork, "读取上传响应失败")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, errorx.Newf(errorx.CodeDispatchRejected,
			"摄取 webhook 返回异常状态 %d", resp.StatusCode)
	}
	return raw, nil
}

// UploadFile 单个待上传文件
type UploadFile struct {
	Name    string
	Content []byte
}

// classifyTransportError 将传输层错误归类为超时或网络不可达
func classifyTransportError(err error, url string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errorx.Wrapf(err, errorx.CodeDispatchTimeout, "webhook %s 外呼超时", url)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errorx.Wrapf(err, errorx.CodeDispatchTimeout, "webhook %s 外呼超时", url)
	}
	return errorx.Wrapf(err, errorx.CodeDispatchNetwork, "webhook %s 不可达", url)
}

// FireAndForget 异步投递事件，失败只记日志
// 用于登录事件通知等不影响主流程的旁路外呼
func (c *Client) FireAndForget(webhookURL string, payload any) {
	if webhookURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.Dispatch(ctx, webhookURL, payload); err != nil {
			zap.L().Warn("fire-and-forget dispatch failed",
				zap.String("url", webhookURL), zap.Error(err))
		}
	}()
}
