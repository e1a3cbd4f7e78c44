package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

// GetLenRandomString 生成指定长度的随机字母数字字符串
func GetLenRandomString(length int) string {
	result := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))
	for i := range result {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			result[i] = 'x'
			continue
		}
		result[i] = charset[n.Int64()]
	}
	return string(result)
}

// NewSessionId 生成会话标识
// 格式: session_<毫秒时间戳>_<9位随机串>，与历史数据保持一致
func NewSessionId() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), GetLenRandomString(9))
}

// NewIngestSessionId 生成文件摄取批次标识
// 格式: rag_<毫秒时间戳>_<8位随机串>
func NewIngestSessionId() string {
	return fmt.Sprintf("rag_%d_%s", time.Now().UnixMilli(), GetLenRandomString(8))
}
