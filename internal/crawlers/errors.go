package crawlers

import (
	"errors"
	"fmt"
)

// 抽取失败的类型
var (
	ErrNavigation      = errors.New("页面导航失败")
	ErrElementTimeout  = errors.New("等待元素超时")
	ErrNoAvailability  = errors.New("没有可观看平台")
	ErrInvalidID       = errors.New("无效的作品ID")
	ErrPageUnavailable = errors.New("标签页不可用")
	ErrWorkerPanic     = errors.New("抽取过程发生panic")
)

// ExtractionError 单个作品的抽取失败
type ExtractionError struct {
	ExternalID string
	Kind       error // 上面的错误类型之一
	Err        error // 底层错误,可为空
}

// Error 实现error接口
func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("作品 %s: %v: %v", e.ExternalID, e.Kind, e.Err)
	}
	return fmt.Sprintf("作品 %s: %v", e.ExternalID, e.Kind)
}

// Unwrap 同时暴露类型与底层错误
func (e *ExtractionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func extractionError(id string, kind, err error) *ExtractionError {
	return &ExtractionError{ExternalID: id, Kind: kind, Err: err}
}

// FailureKind 返回失败类型的简短名称,用于日志与报告
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrNavigation):
		return "navigation"
	case errors.Is(err, ErrElementTimeout):
		return "element_timeout"
	case errors.Is(err, ErrNoAvailability):
		return "no_availability"
	case errors.Is(err, ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, ErrPageUnavailable):
		return "page_unavailable"
	case errors.Is(err, ErrWorkerPanic):
		return "panic"
	default:
		return "unknown"
	}
}
