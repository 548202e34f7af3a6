package models

import (
	"encoding/json"
	"time"
)

// SourceOutcome 单个来源的处理结果
type SourceOutcome string

const (
	OutcomeOK     SourceOutcome = "ok"     // 采集到作品
	OutcomeEmpty  SourceOutcome = "empty"  // 列表正常但为空
	OutcomeFailed SourceOutcome = "failed" // 列表页加载失败
)

// FailureInfo 单个作品的抽取失败
type FailureInfo struct {
	ExternalID string `json:"external_id"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// SourceReport 单个来源的统计
type SourceReport struct {
	Name           string        `json:"name"`
	Outcome        SourceOutcome `json:"outcome"`
	Collected      int           `json:"collected"`
	Attempted      int           `json:"attempted"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	ItemsWritten   int           `json:"items_written"`
	WindowsWritten int           `json:"windows_written"`
	Skipped        int           `json:"skipped"` // 无法映射的窗口
	Failures       []FailureInfo `json:"failures,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       float64       `json:"duration"` // 秒
}

// CleanupReport 清理阶段的统计
type CleanupReport struct {
	StatusCleared  int64 `json:"status_cleared"`
	WindowsDeleted int64 `json:"windows_deleted"`
	ItemsDeleted   int64 `json:"items_deleted"`
}

// PassReport 一次完整抓取的报告
type PassReport struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Mode       string         `json:"mode"`
	Sources    []SourceReport `json:"sources"`
	Cleanup    *CleanupReport `json:"cleanup,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Attempted 全部来源尝试抽取的作品数
func (r *PassReport) Attempted() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Attempted
	}
	return n
}

// Succeeded 全部来源抽取成功的作品数
func (r *PassReport) Succeeded() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Succeeded
	}
	return n
}

// Failed 全部来源抽取失败的作品数
func (r *PassReport) Failed() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Failed
	}
	return n
}

// Written 写入的作品与窗口行数
func (r *PassReport) Written() (items, windows int) {
	for _, s := range r.Sources {
		items += s.ItemsWritten
		windows += s.WindowsWritten
	}
	return items, windows
}

// Deleted 清理阶段删除的行数
func (r *PassReport) Deleted() int64 {
	if r.Cleanup == nil {
		return 0
	}
	return r.Cleanup.WindowsDeleted + r.Cleanup.ItemsDeleted
}

// Duration 耗时(秒)
func (r *PassReport) Duration() float64 {
	return r.FinishedAt.Sub(r.StartedAt).Seconds()
}

// ToJSON 序列化为JSON
func (r *PassReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *PassReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
