package respond

// StoreTokenRespond 令牌落库成功后的返回
// appToken 是服务端自己签发的 JWT，后续 API 与 WebSocket 凭此认证
type StoreTokenRespond struct {
	AppToken  string `json:"appToken"`
	ExpiresAt int64  `json:"expiresAt"` // Google access token 过期时间（Unix 秒）
}

// ValidateTokenRespond 令牌校验结果
type ValidateTokenRespond struct {
	Valid     bool  `json:"valid"`
	Refreshed bool  `json:"refreshed"` // 本次校验期间是否发生了静默刷新
	ExpiresAt int64 `json:"expiresAt"`
}

// GetTokenRespond 取用令牌的返回
// 只在令牌通过双重校验后下发明文令牌对
type GetTokenRespond struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Email        string `json:"email"`
	UserName     string `json:"userName,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
}
