// reply.go
// AI 回复形态识别
// 工作流返回的负载形态不定：对象数组、单对象、音频字段、
// 双重编码的 JSON、裸字符串。识别器按序尝试，第一个命中的生效；
// 全部落空时降级为占位文本，绝不让原始负载直接透传给客户端
package chat

import (
	"encoding/json"
	"strings"

	"nevermiss_server/pkg/constants"
)

// fallbackReplyText 所有识别器落空时的占位文本
const fallbackReplyText = "I received your message but could not read the reply. Please try again."

// DecodedReply 识别成功后的标准回复
type DecodedReply struct {
	MessageType string // text 或 audio
	Content     string
}

// DecodeReply 解析工作流返回的原始负载
// 返回的 bool 表示是否成功识别；失败时仍返回可用的占位回复
func DecodeReply(raw []byte) (*DecodedReply, bool) {
	if reply, ok := decodeOnce(raw, 0); ok {
		return reply, true
	}
	return &DecodedReply{
		MessageType: constants.MessageTypeText,
		Content:     fallbackReplyText,
	}, false
}

// decodeOnce 单轮识别，depth 限制双重编码的递归层数
func decodeOnce(raw []byte, depth int) (*DecodedReply, bool) {
	if depth > 2 {
		return nil, false
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, false
	}

	// 形态一：对象数组，取首个元素的 output 字段
	var arr []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		if out, ok := arr[0]["output"]; ok {
			return decodeOutputField(out, depth)
		}
		if data, ok := arr[0]["data"]; ok {
			return decodeAudioField(data)
		}
		return nil, false
	}

	// 形态二：单对象
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		if out, ok := obj["output"]; ok {
			return decodeOutputField(out, depth)
		}
		// 形态三：data 字段承载 base64 音频
		if data, ok := obj["data"]; ok {
			return decodeAudioField(data)
		}
		return nil, false
	}

	// 形态四/五：字符串，可能是双重编码的 JSON，也可能就是正文
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return decodeString(str, depth)
	}

	// 非 JSON 的裸文本
	return textReply(trimmed)
}

// decodeOutputField 解析 output 字段
// output 可能是字符串、嵌套对象，甚至再来一层编码
func decodeOutputField(out json.RawMessage, depth int) (*DecodedReply, bool) {
	var str string
	if err := json.Unmarshal(out, &str); err == nil {
		return decodeString(str, depth)
	}
	// output 不是字符串，按新负载递归识别
	return decodeOnce(out, depth+1)
}

// decodeString 处理字符串正文：先试双重编码，再当普通文本
func decodeString(str string, depth int) (*DecodedReply, bool) {
	trimmed := strings.TrimSpace(str)
	if trimmed == "" {
		return nil, false
	}

	// 双重编码的 JSON：字符串内容本身又是一段 JSON
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if reply, ok := decodeOnce([]byte(trimmed), depth+1); ok {
			return reply, true
		}
		// 内层解析失败就把原文当纯文本，用户看到原始 JSON 好过看到空白
	}

	return textReply(trimmed)
}

// decodeAudioField 解析音频字段
func decodeAudioField(data json.RawMessage) (*DecodedReply, bool) {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		// data 字段不是字符串，尝试原样清洗
		str = string(data)
	}
	normalized, err := NormalizeAudioContent(str)
	if err != nil {
		return nil, false
	}
	return &DecodedReply{
		MessageType: constants.MessageTypeAudio,
		Content:     normalized,
	}, true
}

// textReply 构造文本回复
func textReply(content string) (*DecodedReply, bool) {
	return &DecodedReply{
		MessageType: constants.MessageTypeText,
		Content:     content,
	}, true
}
