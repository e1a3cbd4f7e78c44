package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"nevermiss_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth n8n 回调接口认证中间件
// 工作流回调不走用户 JWT，改用配置的静态 API Key
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 未配置 Key 时放行，便于本地联调
		if apiKey == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "missing api key",
			})
			return
		}

		// 恒定时间比较，避免时序侧信道
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "invalid api key",
			})
			return
		}

		c.Next()
	}
}
