package models

import (
	"strconv"
	"time"
)

// LifecycleStatus 内容生命周期标签
type LifecycleStatus string

const (
	StatusNone     LifecycleStatus = ""         // 无标签
	StatusUpcoming LifecycleStatus = "UPCOMING" // 即将上线
	StatusExpiring LifecycleStatus = "EXPIRING" // 即将下线
)

// DateLayout 日期列的存储格式
const DateLayout = "2006-01-02"

// ContentItem 一个影视作品
// ExternalID 为源站ID,代理键只存在于存储层
type ContentItem struct {
	ExternalID   int64           `json:"external_id"`
	Title        string          `json:"title"`
	Genre        string          `json:"genre"`
	Synopsis     string          `json:"synopsis"`
	ThumbnailURL string          `json:"thumbnail_url"`
	BackdropURL  *string         `json:"backdrop_url,omitempty"`
	RunningTime  *int            `json:"running_time,omitempty"` // 分钟
	Rank         *int            `json:"rank,omitempty"`         // 仅排行榜来源
	Status       LifecycleStatus `json:"status,omitempty"`
}

// AvailabilityWindow 作品在某个平台上的可观看窗口
// ReleaseDate 与 ExpireDate 至多一个非空
type AvailabilityWindow struct {
	Platform    Platform   `json:"platform"`
	URL         string     `json:"url"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	ExpireDate  *time.Time `json:"expire_date,omitempty"`
}

// CrawlRecord 单个作品的一次抽取结果
type CrawlRecord struct {
	Item    ContentItem          `json:"item"`
	Windows []AvailabilityWindow `json:"windows"`
}

// Target 待抽取的作品
// Rank 为采集顺序中的位置(从1开始),0 表示无排名
type Target struct {
	ExternalID string `json:"external_id"`
	Rank       int    `json:"rank,omitempty"`
}

// NewTargets 按采集顺序构造抽取目标
// ranked 为 true 时按位置赋予排名
func NewTargets(ids []string, ranked bool) []Target {
	targets := make([]Target, 0, len(ids))
	for i, id := range ids {
		t := Target{ExternalID: id}
		if ranked {
			t.Rank = i + 1
		}
		targets = append(targets, t)
	}
	return targets
}

// ParseExternalID 解析源站ID
func ParseExternalID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}

// FormatDate 将日期转为存储格式,nil 返回 nil
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

// ParseDate 解析存储格式的日期
func ParseDate(s string) (*time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
