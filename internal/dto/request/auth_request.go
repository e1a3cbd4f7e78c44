package request

// StoreTokenRequest 登录成功后提交 Google 令牌
// 使用位置:
//   - internal/handler/auth_handler.go: StoreTokenHandler
//   - internal/service/token/service.go: StoreToken
type StoreTokenRequest struct {
	UserId       string `json:"userId" binding:"required"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	AccessToken  string `json:"accessToken" binding:"required"`
	RefreshToken string `json:"refreshToken"` // 静默登录可能不下发
	ExpiresIn    int    `json:"expiresIn"`    // 剩余有效秒数
}

// ValidateTokenRequest 校验令牌有效性请求
type ValidateTokenRequest struct {
	UserId string `json:"userId" binding:"required"`
}

// RefreshTokenRequest 主动刷新令牌请求
type RefreshTokenRequest struct {
	UserId string `json:"userId" binding:"required"`
}

// LogoutRequest 登出请求
// hard 为 true 时清空全部令牌，否则只结束当前会话
type LogoutRequest struct {
	UserId string `json:"userId" binding:"required"`
	Hard   bool   `json:"hard"`
}
