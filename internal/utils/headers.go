package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

// MaxHeaderValueLength 请求头值的最大字节数
const MaxHeaderValueLength = 8192

// ForbiddenHeaders 由浏览器或HTTP客户端自行维护的请求头
var ForbiddenHeaders = []string{"Host", "Content-Length", "Transfer-Encoding", "Connection"}

// SensitiveKeywords 名称包含这些关键字的请求头在日志中脱敏
var SensitiveKeywords = []string{"authorization", "cookie", "token", "key", "secret", "password", "credential"}

var (
	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// HeaderValidator 检查附加请求头
type HeaderValidator struct {
	forbidden map[string]bool
}

// NewHeaderValidator 创建请求头检查器
func NewHeaderValidator() *HeaderValidator {
	forbidden := make(map[string]bool, len(ForbiddenHeaders))
	for _, h := range ForbiddenHeaders {
		forbidden[http.CanonicalHeaderKey(h)] = true
	}
	return &HeaderValidator{forbidden: forbidden}
}

// ValidateName 名称只允许字母、数字和连字符
func (v *HeaderValidator) ValidateName(name string) error {
	switch {
	case name == "":
		return &models.ValidationError{Field: "name", Reason: "头部名称不能为空"}
	case !headerNamePattern.MatchString(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称包含非法字符",
			Suggestion: "仅使用字母、数字和连字符,如 'Referer'",
		}
	case v.forbidden[http.CanonicalHeaderKey(name)]:
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "该头部由浏览器自动维护",
			Suggestion: fmt.Sprintf("移除 '%s'", name),
		}
	}
	return nil
}

// ValidateValue 值必须是可打印ASCII且不超过 MaxHeaderValueLength
func (v *HeaderValidator) ValidateValue(name, value string) error {
	if len(value) > MaxHeaderValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	}
	if !headerValuePattern.MatchString(value) {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含控制字符或非ASCII字符",
			Suggestion: "非ASCII内容请先做百分号编码",
		}
	}
	return nil
}

// Validate 返回遇到的第一个错误
func (v *HeaderValidator) Validate(headers http.Header) error {
	for _, name := range sortedKeys(headers) {
		if err := v.ValidateName(name); err != nil {
			return err
		}
		for _, value := range headers[name] {
			if err := v.ValidateValue(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// HeaderRedactor 生成可写入日志的请求头副本
type HeaderRedactor struct {
	keywords []string
}

// NewHeaderRedactor 创建脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{keywords: SensitiveKeywords}
}

// IsSensitive 名称是否包含敏感关键字
func (r *HeaderRedactor) IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (r *HeaderRedactor) mask(name, value string) string {
	if !r.IsSensitive(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 每个头部只取第一个值
func (r *HeaderRedactor) Redact(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			out[name] = r.mask(name, values[0])
		}
	}
	return out
}

// RedactToString 按名称排序输出 "Name: value, ..."
func (r *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := r.Redact(headers)
	parts := make([]string, 0, len(redacted))
	for _, name := range sortedKeys(headers) {
		if v, ok := redacted[name]; ok {
			parts = append(parts, name+": "+v)
		}
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
