// Package googleauth 封装 Google OAuth 令牌的校验与刷新
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"nevermiss_server/internal/config"
	"nevermiss_server/pkg/errorx"
)

// TokenInfo tokeninfo 端点的返回结果
type TokenInfo struct {
	Audience  string `json:"aud"`
	Scope     string `json:"scope"`
	ExpiresIn string `json:"expires_in"` // 剩余秒数，Google 以字符串返回
	Email     string `json:"email"`
}

// RefreshResult 刷新令牌的返回结果
type RefreshResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// ErrInvalidGrant 刷新令牌已被吊销或过期，无法继续刷新
var ErrInvalidGrant = errors.New("refresh token no longer valid")

// Client Google OAuth 客户端
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	tokenURL     string
	tokenInfoURL string
}

// NewClient 根据配置构造客户端
func NewClient(cfg *config.GoogleOAuthConfig) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.TokenURL,
		tokenInfoURL: cfg.TokenInfoURL,
	}
}

// Introspect 调用 tokeninfo 端点校验 access token 是否仍有效
// 返回剩余有效秒数；令牌无效时返回 CodeUnauthorized 错误
func (c *Client) Introspect(ctx context.Context, accessToken string) (*TokenInfo, int, error) {
	endpoint := c.tokenInfoURL + "?access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, errorx.Wrap(err, errorx.CodeServerBusy, "构造校验请求失败")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, errorx.Wrap(err, errorx.CodeServerBusy, "tokeninfo 请求失败")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errorx.Wrap(err, errorx.CodeServerBusy, "读取 tokeninfo 响应失败")
	}

	// tokeninfo 对无效令牌返回 400/401，其余非 200 属远端临时故障
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, 0, errorx.Newf(errorx.CodeUnauthorized,
			"access token 校验未通过，状态 %d", resp.StatusCode)
	default:
		return nil, 0, errorx.Newf(errorx.CodeServerBusy,
			"tokeninfo 暂不可用，状态 %d", resp.StatusCode)
	}

	var info TokenInfo
	if err = json.Unmarshal(raw, &info); err != nil {
		return nil, 0, errorx.Wrap(err, errorx.CodeServerBusy, "解析 tokeninfo 响应失败")
	}
	expiresIn, _ := strconv.Atoi(info.ExpiresIn)
	return &info, expiresIn, nil
}

// Refresh 用 refresh token 换取新的 access token
// invalid_grant 视为不可恢复，向上返回 ErrInvalidGrant
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "构造刷新请求失败")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "刷新请求失败")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "读取刷新响应失败")
	}

	if resp.StatusCode != http.StatusOK {
		// 区分"令牌已吊销"和临时故障：前者必须让用户重新登录
		var oauthErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &oauthErr)
		if oauthErr.Error == "invalid_grant" {
			zap.L().Warn("refresh token revoked or expired")
			return nil, ErrInvalidGrant
		}
		return nil, errorx.Newf(errorx.CodeServerBusy,
			"刷新令牌失败，状态 %d", resp.StatusCode)
	}

	var result RefreshResult
	if err = json.Unmarshal(raw, &result); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "解析刷新响应失败")
	}
	if result.AccessToken == "" {
		return nil, errorx.New(errorx.CodeServerBusy, "刷新响应缺少 access_token")
	}
	return &result, nil
}
