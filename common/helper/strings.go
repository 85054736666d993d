package helper

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BuildFullURL 根据 host 和相对路径拼接完整 URL
// - 如果 path 为空，返回空字符串
// - 如果 path 已经是 http/https 开头，原样返回
// - 否则使用 host 和 path 进行拼接，避免重复斜杠
func BuildFullURL(host, path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	p := strings.TrimSpace(path)
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	h := strings.TrimRight(strings.TrimSpace(host), "/")
	p = strings.TrimLeft(p, "/")
	if h == "" {
		return p
	}
	return h + "/" + p
}

// SignPayload 支付网关签名
// 签名算法：HMAC-SHA256(merchant_no + timestamp + nonce + body, secret)，hex 小写
func SignPayload(merchantNo, timestamp, nonce, body, secret string) string {
	signString := merchantNo + timestamp + nonce + body
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(signString))
	return hex.EncodeToString(h.Sum(nil))
}

// SecureCompare 恒定时间字符串比较（防止时序攻击）
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return hmac.Equal([]byte(a), []byte(b))
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// 判断字符串是不是数字
func CtypeDigit(s string) bool {

	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}

// 判断字符串是不是字母+数字
func CtypeAlnum(s string) bool {

	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) && !isAlpha(r) {
			return false
		}
	}
	return true
}

func IsEmptyString(str string) bool {

	s := strings.TrimSpace(str)
	if len(s) == 0 {
		return true
	}

	return false
}
