package models

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// CrawlMode 页面驱动模式
type CrawlMode string

const (
	ModeStatic  CrawlMode = "static"  // 仅HTTP抓取(colly)
	ModeDynamic CrawlMode = "dynamic" // 浏览器渲染(rod)
)

// CrawlConfig 抓取配置
type CrawlConfig struct {
	Mode             CrawlMode `json:"mode" mapstructure:"mode"`                             // 页面驱动模式 (默认:dynamic)
	BaseURL          string    `json:"base_url" mapstructure:"base_url"`                     // 站点根地址
	TitleURL         string    `json:"title_url" mapstructure:"title_url"`                   // 详情页前缀,后接作品ID
	Concurrency      int       `json:"concurrency" mapstructure:"concurrency"`               // 详情页并发数 (默认:5)
	ScrollLimit      int       `json:"scroll_limit" mapstructure:"scroll_limit"`             // 滚动次数上限 (默认:100)
	SettleDelayMs    int       `json:"settle_delay_ms" mapstructure:"settle_delay_ms"`       // 滚动后等待 (默认:1000)
	ActionDelayMs    int       `json:"action_delay_ms" mapstructure:"action_delay_ms"`       // 点击后等待 (默认:300)
	ElementTimeoutMs int       `json:"element_timeout_ms" mapstructure:"element_timeout_ms"` // 等待元素超时 (默认:30000)
	NavTimeoutMs     int       `json:"nav_timeout_ms" mapstructure:"nav_timeout_ms"`         // 导航超时 (默认:30000)
	RatePerSecond    float64   `json:"rate_per_second" mapstructure:"rate_per_second"`       // 详情页导航速率,0 表示不限
	Sources          []string  `json:"sources" mapstructure:"sources"`                       // 启用的来源,空表示全部
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Mode != ModeStatic && c.Mode != ModeDynamic {
		return fmt.Errorf("无效的抓取模式: %s (有效值: static, dynamic)", c.Mode)
	}
	if err := ValidateURL(c.BaseURL); err != nil {
		return fmt.Errorf("站点地址无效: %w", err)
	}
	if err := ValidateURL(c.TitleURL); err != nil {
		return fmt.Errorf("详情页地址无效: %w", err)
	}
	if c.Concurrency < 1 || c.Concurrency > 50 {
		return fmt.Errorf("并发数必须在1-50之间")
	}
	if c.ScrollLimit < 1 || c.ScrollLimit > 1000 {
		return fmt.Errorf("滚动次数上限必须在1-1000之间")
	}
	if c.SettleDelayMs < 0 || c.ActionDelayMs < 0 {
		return fmt.Errorf("等待时间不能为负数")
	}
	if c.ElementTimeoutMs < 1 || c.NavTimeoutMs < 1 {
		return fmt.Errorf("超时时间必须为正数")
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("速率不能为负数")
	}
	return nil
}

// SettleDelay 滚动后等待时长
func (c *CrawlConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// ActionDelay 点击后等待时长
func (c *CrawlConfig) ActionDelay() time.Duration {
	return time.Duration(c.ActionDelayMs) * time.Millisecond
}

// ElementTimeout 等待元素超时
func (c *CrawlConfig) ElementTimeout() time.Duration {
	return time.Duration(c.ElementTimeoutMs) * time.Millisecond
}

// NavTimeout 导航超时
func (c *CrawlConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMs) * time.Millisecond
}

// DefaultCrawlConfig 默认抓取配置
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Mode:             ModeDynamic,
		BaseURL:          DefaultBaseURL,
		TitleURL:         DefaultBaseURL + "/title/",
		Concurrency:      5,
		ScrollLimit:      100,
		SettleDelayMs:    1000,
		ActionDelayMs:    300,
		ElementTimeoutMs: 30000,
		NavTimeoutMs:     30000,
	}
}

// NewPassReport 创建一次抓取的报告
func NewPassReport(mode CrawlMode, startedAt time.Time) *PassReport {
	return &PassReport{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Mode:      string(mode),
		Sources:   make([]SourceReport, 0, 4),
	}
}

// ValidateURL 只接受带主机名的 http/https 绝对地址
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return fmt.Errorf("无效的URL %q: %w", raw, err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("URL %q 必须是 http 或 https", raw)
	case u.Host == "":
		return fmt.Errorf("URL %q 缺少主机名", raw)
	}
	return nil
}
