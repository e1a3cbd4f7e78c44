// audio.go
// 音频回复的 base64 清洗与 Data URI 归一化
// 工作流链路可能引入引号、换行和被转义成空格的 '+'，
// 这里统一修复后再交给客户端的 <audio> 播放
package chat

import (
	"strings"

	"nevermiss_server/pkg/errorx"
)

// audioDataURIPrefix 归一化后的统一前缀
const audioDataURIPrefix = "data:audio/mpeg;base64,"

// NormalizeAudioContent 清洗 base64 音频并产出 Data URI
// 输入可以是裸 base64，也可以是已带 data: 前缀的 URI
func NormalizeAudioContent(raw string) (string, error) {
	payload := strings.TrimSpace(raw)

	// 去掉两端可能残留的 JSON 引号
	payload = strings.Trim(payload, `"'`)

	// 已是 Data URI 的只取 base64 部分重新清洗
	if idx := strings.Index(payload, "base64,"); idx >= 0 {
		payload = payload[idx+len("base64,"):]
	}

	// URL 传输中 '+' 常被解码成空格，先还原再去掉换行
	payload = strings.ReplaceAll(payload, " ", "+")
	payload = strings.ReplaceAll(payload, "\n", "")
	payload = strings.ReplaceAll(payload, "\r", "")

	if payload == "" {
		return "", errorx.New(errorx.CodeMalformedReply, "音频内容为空")
	}
	if !isBase64Charset(payload) {
		return "", errorx.New(errorx.CodeMalformedReply, "音频内容不是合法 base64")
	}

	return audioDataURIPrefix + payload, nil
}

// isBase64Charset 检查字符串只含标准 base64 字符
// 只验证字符集不做解码，长度不整除 4 的残缺数据交给播放端容错
func isBase64Charset(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '/' || c == '=':
		default:
			return false
		}
	}
	return true
}
