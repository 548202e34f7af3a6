package crawlers

import (
	"context"
	"net/http"
	"time"
)

// Element 页面元素
// 查询子元素未命中时返回 nil, nil
type Element interface {
	Text() (string, error)
	Attr(name string) (string, bool, error)
	// Click 点击元素,ctx 结束时放弃
	Click(ctx context.Context) error
	QueryOne(selector string) (Element, error)
}

// PairQuery 在每个 Item 元素内读取 Key/Value 子元素文本,组成键值对
type PairQuery struct {
	Item  string
	Key   string
	Value string
}

// Page 页面驱动能力
// 只有导航/网络失败才返回错误,元素未命中返回空结果
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor 在 timeout 内等待元素出现,超时返回 false
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	QueryOne(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// CollectPairs 在页面内一次性收集键值对
	CollectPairs(ctx context.Context, q PairQuery) (map[string]string, error)
	ScrollToBottom(ctx context.Context) error
	ScrollHeight(ctx context.Context) (int, error)
	// Reset 清理存储状态,准备处理下一个作品
	Reset(ctx context.Context) error
	Close() error
}

// Browser 标签页工厂
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// BrowserOptions 浏览器与HTTP客户端的公共选项
type BrowserOptions struct {
	Headless       bool
	Bin            string // 浏览器可执行文件,空表示自动查找/下载
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Headers        http.Header
	NavTimeout     time.Duration
	ActionTimeout  time.Duration // 脚本执行与元素操作的上限
}

// DefaultUserAgent 移动端User-Agent,站点只提供移动版页面
const DefaultUserAgent = "Mozilla/5.0 (Linux; Android 11; Pixel 5) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Mobile Safari/537.36"

// DefaultBrowserOptions 默认选项
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:       true,
		UserAgent:      DefaultUserAgent,
		ViewportWidth:  393,
		ViewportHeight: 851,
		NavTimeout:     30 * time.Second,
		ActionTimeout:  30 * time.Second,
	}
}

// sleep 可被取消的等待
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// readText 读取元素文本,元素为空时返回空字符串
func readText(el Element) string {
	if el == nil {
		return ""
	}
	s, err := el.Text()
	if err != nil {
		return ""
	}
	return s
}

// readAttr 读取元素属性,元素为空或属性不存在时返回空字符串
func readAttr(el Element, name string) string {
	if el == nil {
		return ""
	}
	v, ok, err := el.Attr(name)
	if err != nil || !ok {
		return ""
	}
	return v
}

// clickWithin 在 timeout 内尽力点击,timeout <= 0 时只受 ctx 约束
func clickWithin(ctx context.Context, el Element, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return el.Click(ctx)
}
