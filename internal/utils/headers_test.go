package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

func TestHeaderValidator_ValidateName(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		expectError bool
	}{
		{"合法名称-字母", "Accept-Language", false},
		{"合法名称-数字", "X-Request-ID-123", false},
		{"非法名称-空格", "Accept Language", true},
		{"非法名称-下划线", "Accept_Language", true},
		{"非法名称-特殊字符", "Referer@", true},
		{"非法名称-空字符串", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateName(tt.headerName)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_ValidateValue(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{"合法值-ASCII", "ko-KR,ko;q=0.9", false},
		{"合法值-空字符串", "", false},
		{"合法值-长字符串", strings.Repeat(" ", 8000), false},
		{"非法值-超长", strings.Repeat("a", MaxHeaderValueLength+1), true},
		{"非法值-控制字符", "value\x00with\x01null", true},
		{"非法值-非ASCII", "한국어", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateValue("X-Test", tt.value)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_Forbidden(t *testing.T) {
	validator := NewHeaderValidator()

	for _, name := range []string{"Host", "content-length", "Connection"} {
		err := validator.Validate(http.Header{name: []string{"x"}})
		var verr *models.ValidationError
		if !errors.As(err, &verr) || verr.Field != "name" {
			t.Errorf("%s 应被禁止: %v", name, err)
		}
	}
	if err := validator.Validate(http.Header{"Referer": []string{"https://m.kinolights.com/"}}); err != nil {
		t.Errorf("合法头部不应报错: %v", err)
	}
}

func TestHeaderRedactor(t *testing.T) {
	redactor := NewHeaderRedactor()

	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"普通头部不脱敏", "Accept-Language", "ko-KR", "ko-KR"},
		{"Bearer令牌", "Authorization", "Bearer secret-token", "Bearer ***"},
		{"长密钥保留首尾", "X-API-Key", "abcd1234efgh", "abcd***efgh"},
		{"短密钥完全隐藏", "X-Token", "abc", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactor.Redact(http.Header{tt.key: []string{tt.value}})
			if got[tt.key] != tt.want {
				t.Errorf("脱敏结果 = %q, 期望 %q", got[tt.key], tt.want)
			}
		})
	}

	s := redactor.RedactToString(http.Header{"Cookie-Secret": []string{"0123456789"}})
	if strings.Contains(s, "456") {
		t.Errorf("字符串输出未脱敏: %s", s)
	}
}
