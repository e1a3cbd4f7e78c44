// Package token 实现 Google OAuth 令牌的缓存、校验与静默刷新
// 同一用户的并发校验会合并为一次远端往返，刷新前后各做一次
// tokeninfo 校验（双重校验），刷新不可恢复时清空该用户全部令牌状态
package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"nevermiss_server/internal/dao/mysql"
	myredis "nevermiss_server/internal/dao/redis"
	"nevermiss_server/internal/dto/request"
	"nevermiss_server/internal/dto/respond"
	"nevermiss_server/internal/infrastructure/googleauth"
	"nevermiss_server/internal/infrastructure/n8n"
	"nevermiss_server/internal/model"
	"nevermiss_server/pkg/aes"
	"nevermiss_server/pkg/errorx"
	"nevermiss_server/pkg/util/jwt"
)

// expirySkew 过期判定的提前量，临期令牌按已过期处理
const expirySkew = 60 * time.Second

// TokenState 校验通过后的令牌状态
type TokenState struct {
	AccessToken  string
	RefreshToken string // 解密后的 refresh token，外呼负载需要携带
	Email        string
	UserName     string
	ExpiresAt    int64
	Refreshed    bool // 本次校验期间是否发生了静默刷新
}

// inflight 同一用户的进行中校验
type inflight struct {
	done  chan struct{}
	state *TokenState
	err   error
}

// tokenService 令牌业务逻辑实现
type tokenService struct {
	repos  *mysql.Repositories
	cache  myredis.AsyncCacheService
	google *googleauth.Client
	cipher *aes.Cipher
	n8n    *n8n.Client

	authEventWebhook string

	mu       sync.Mutex
	inflight map[string]*inflight
}

// NewTokenService 构造函数，注入所有依赖
func NewTokenService(
	repos *mysql.Repositories,
	cacheService myredis.AsyncCacheService,
	google *googleauth.Client,
	cipher *aes.Cipher,
	n8nClient *n8n.Client,
	authEventWebhook string,
) *tokenService {
	return &tokenService{
		repos:            repos,
		cache:            cacheService,
		google:           google,
		cipher:           cipher,
		n8n:              n8nClient,
		authEventWebhook: authEventWebhook,
		inflight:         make(map[string]*inflight),
	}
}

// StoreToken 登录成功后令牌落库
// 加密存储，签发应用内 JWT，并旁路通知登录事件
func (s *tokenService) StoreToken(req request.StoreTokenRequest) (*respond.StoreTokenRespond, error) {
	accessEnc, err := s.cipher.Encrypt(req.AccessToken)
	if err != nil {
		zap.L().Error("加密 access token 失败", zap.String("user_id", req.UserId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	var refreshEnc string
	if req.RefreshToken != "" {
		refreshEnc, err = s.cipher.Encrypt(req.RefreshToken)
		if err != nil {
			zap.L().Error("加密 refresh token 失败", zap.String("user_id", req.UserId), zap.Error(err))
			return nil, errorx.ErrServerBusy
		}
	}

	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600 // Google access token 默认一小时
	}
	expiresAt := time.Now().Add(time.Duration(expiresIn) * time.Second).Unix()

	record := &model.UserToken{
		UserId:          req.UserId,
		Email:           req.Email,
		DisplayName:     req.DisplayName,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ExpiresAtUnix:   expiresAt,
	}
	if err := s.repos.Token.Upsert(record); err != nil {
		zap.L().Error("令牌落库失败", zap.String("user_id", req.UserId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	appToken, err := jwt.GenerateAccessToken(req.UserId)
	if err != nil {
		zap.L().Error("签发应用 JWT 失败", zap.String("user_id", req.UserId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	// 登录事件旁路通知，失败不影响主流程
	s.n8n.FireAndForget(s.authEventWebhook, map[string]any{
		"event":  "login",
		"userId": req.UserId,
		"email":  req.Email,
		"at":     time.Now().Format(time.RFC3339),
	})

	zap.L().Info("令牌已落库", zap.String("user_id", req.UserId))
	return &respond.StoreTokenRespond{
		AppToken:  appToken,
		ExpiresAt: expiresAt,
	}, nil
}

// EnsureValid 确保用户持有有效的 access token
// 同一用户的并发调用合并为一次执行，其余调用共享结果
func (s *tokenService) EnsureValid(ctx context.Context, userId string) (*TokenState, error) {
	s.mu.Lock()
	if call, ok := s.inflight[userId]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.state, call.err
		case <-ctx.Done():
			return nil, errorx.Wrap(ctx.Err(), errorx.CodeServerBusy, "令牌校验等待被取消")
		}
	}
	call := &inflight{done: make(chan struct{})}
	s.inflight[userId] = call
	s.mu.Unlock()

	call.state, call.err = s.ensureValidLocked(ctx, userId)
	close(call.done)

	s.mu.Lock()
	delete(s.inflight, userId)
	s.mu.Unlock()

	return call.state, call.err
}

// ensureValidLocked 实际的校验与刷新流程
func (s *tokenService) ensureValidLocked(ctx context.Context, userId string) (*TokenState, error) {
	record, err := s.repos.Token.FindByUserId(userId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.ErrAuthFatal
		}
		zap.L().Error("读取令牌失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	// 软登出后 access token 为空，直接走刷新流程
	if record.AccessTokenEnc == "" {
		return s.refresh(ctx, userId, record)
	}

	accessToken, err := s.cipher.Decrypt(record.AccessTokenEnc)
	if err != nil {
		// 密钥轮换后旧密文无法解密，等同于令牌丢失
		zap.L().Warn("解密 access token 失败，清空令牌状态", zap.String("user_id", userId))
		s.clearAll(userId)
		return nil, errorx.ErrAuthFatal
	}

	// 第一重校验：本地过期时间 + 远端 tokeninfo
	if time.Until(time.Unix(record.ExpiresAtUnix, 0)) > expirySkew {
		if _, expiresIn, err := s.google.Introspect(ctx, accessToken); err == nil {
			return &TokenState{
				AccessToken:  accessToken,
				RefreshToken: s.decryptRefresh(record),
				Email:        record.Email,
				UserName:     record.DisplayName,
				ExpiresAt:    time.Now().Unix() + int64(expiresIn),
				Refreshed:    false,
			}, nil
		} else if errorx.GetCode(err) != errorx.CodeUnauthorized {
			// 远端临时故障时信任本地过期时间，避免误登出
			zap.L().Warn("tokeninfo 临时不可用，信任本地状态",
				zap.String("user_id", userId), zap.Error(err))
			return &TokenState{
				AccessToken:  accessToken,
				RefreshToken: s.decryptRefresh(record),
				Email:        record.Email,
				UserName:     record.DisplayName,
				ExpiresAt:    record.ExpiresAtUnix,
				Refreshed:    false,
			}, nil
		}
		// 远端明确判无效，进入刷新流程
	}

	return s.refresh(ctx, userId, record)
}

// refresh 用 refresh token 换新并做第二重校验
func (s *tokenService) refresh(ctx context.Context, userId string, record *model.UserToken) (*TokenState, error) {
	if record.RefreshTokenEnc == "" {
		zap.L().Warn("无 refresh token 可用，清空令牌状态", zap.String("user_id", userId))
		s.clearAll(userId)
		return nil, errorx.ErrAuthFatal
	}

	refreshToken, err := s.cipher.Decrypt(record.RefreshTokenEnc)
	if err != nil {
		zap.L().Warn("解密 refresh token 失败，清空令牌状态", zap.String("user_id", userId))
		s.clearAll(userId)
		return nil, errorx.ErrAuthFatal
	}

	result, err := s.google.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, googleauth.ErrInvalidGrant) {
			// 刷新令牌已被吊销，不可恢复
			s.clearAll(userId)
			return nil, errorx.ErrAuthFatal
		}
		zap.L().Error("刷新令牌失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	// 第二重校验：新令牌也要过一遍 tokeninfo，防止拿到坏令牌继续用
	if _, _, err := s.google.Introspect(ctx, result.AccessToken); err != nil {
		if errorx.GetCode(err) == errorx.CodeUnauthorized {
			zap.L().Warn("刷新产出的令牌未通过校验，清空令牌状态", zap.String("user_id", userId))
			s.clearAll(userId)
			return nil, errorx.ErrAuthFatal
		}
		zap.L().Warn("刷新后校验临时失败，仍采用新令牌", zap.String("user_id", userId), zap.Error(err))
	}

	accessEnc, err := s.cipher.Encrypt(result.AccessToken)
	if err != nil {
		zap.L().Error("加密新 access token 失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second).Unix()
	if err := s.repos.Token.UpdateAccessToken(userId, accessEnc, expiresAt); err != nil {
		zap.L().Error("更新令牌失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	zap.L().Info("令牌已静默刷新", zap.String("user_id", userId))
	return &TokenState{
		AccessToken:  result.AccessToken,
		RefreshToken: refreshToken,
		Email:        record.Email,
		UserName:     record.DisplayName,
		ExpiresAt:    expiresAt,
		Refreshed:    true,
	}, nil
}

// decryptRefresh 尽力解密 refresh token，缺失或解密失败返回空串
func (s *tokenService) decryptRefresh(record *model.UserToken) string {
	if record.RefreshTokenEnc == "" {
		return ""
	}
	refreshToken, err := s.cipher.Decrypt(record.RefreshTokenEnc)
	if err != nil {
		return ""
	}
	return refreshToken
}

// ValidateToken 校验令牌，必要时静默刷新
func (s *tokenService) ValidateToken(ctx context.Context, req request.ValidateTokenRequest) (*respond.ValidateTokenRespond, error) {
	state, err := s.EnsureValid(ctx, req.UserId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeAuthFatal {
			return &respond.ValidateTokenRespond{Valid: false}, nil
		}
		return nil, err
	}
	return &respond.ValidateTokenRespond{
		Valid:     true,
		Refreshed: state.Refreshed,
		ExpiresAt: state.ExpiresAt,
	}, nil
}

// RefreshToken 强制刷新，跳过第一重校验
func (s *tokenService) RefreshToken(ctx context.Context, req request.RefreshTokenRequest) (*respond.ValidateTokenRespond, error) {
	record, err := s.repos.Token.FindByUserId(req.UserId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.ErrAuthFatal
		}
		return nil, errorx.ErrServerBusy
	}
	state, err := s.refresh(ctx, req.UserId, record)
	if err != nil {
		return nil, err
	}
	return &respond.ValidateTokenRespond{
		Valid:     true,
		Refreshed: state.Refreshed,
		ExpiresAt: state.ExpiresAt,
	}, nil
}

// GetToken 取用有效的 access token
// 只有通过校验（含必要的刷新）才下发明文令牌
func (s *tokenService) GetToken(ctx context.Context, userId string) (*respond.GetTokenRespond, error) {
	state, err := s.EnsureValid(ctx, userId)
	if err != nil {
		return nil, err
	}
	return &respond.GetTokenRespond{
		AccessToken:  state.AccessToken,
		RefreshToken: state.RefreshToken,
		Email:        state.Email,
		UserName:     state.UserName,
		ExpiresAt:    state.ExpiresAt,
	}, nil
}

// ClearSession 软登出：只清 access token 与过期时间
// 保留 refresh token 与身份，用户回来时可静默续签
func (s *tokenService) ClearSession(userId string) error {
	if err := s.repos.Token.UpdateAccessToken(userId, "", 0); err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil
		}
		zap.L().Error("清除会话令牌失败", zap.String("user_id", userId), zap.Error(err))
		return errorx.ErrServerBusy
	}
	s.cache.SubmitTask(func() {
		_ = s.cache.Delete(context.Background(), "token_state_"+userId)
	})
	return nil
}

// ClearTokens 主动登出，清空用户令牌状态
func (s *tokenService) ClearTokens(userId string) error {
	s.clearAll(userId)
	return nil
}

// clearAll 删除数据库令牌行并异步清掉相关缓存键
// 刷新不可恢复时必须整体清空，半残状态会让客户端反复重试
func (s *tokenService) clearAll(userId string) {
	if err := s.repos.Token.DeleteByUserId(userId); err != nil {
		zap.L().Error("删除令牌失败", zap.String("user_id", userId), zap.Error(err))
	}
	s.cache.SubmitTask(func() {
		_ = s.cache.DeleteByPatterns(context.Background(), []string{
			"pending_webhook_" + userId,
			"token_state_" + userId,
		})
	})
}
