package models

import (
	"fmt"
	"net/http"
	"strings"
)

// ParseHeaderArgs 解析 -H 参数,每项为 "Name: Value"
// 同名头部后出现的覆盖先出现的
func ParseHeaderArgs(args []string) (http.Header, error) {
	h := make(http.Header, len(args))
	for i, arg := range args {
		name, value, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("--header 第%d项缺少冒号,应为 'Name: Value'", i+1)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("--header 第%d项名称为空", i+1)
		}
		h.Set(name, strings.TrimSpace(value))
	}
	return h, nil
}

// ValidationError 请求头验证错误
type ValidationError struct {
	Field      string // name | value
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("请求头 %s 无效: %s", e.HeaderName, e.Reason)
	}
	return fmt.Sprintf("请求头 %s 无效: %s (%s)", e.HeaderName, e.Reason, e.Suggestion)
}
