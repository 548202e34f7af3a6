package crawlers

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
)

// StaticBrowser 基于Colly的页面驱动(static模式)
// 不执行脚本,点击与滚动为空操作,适合服务端渲染的页面与测试
type StaticBrowser struct {
	opts BrowserOptions
}

// NewStaticBrowser 创建静态页面驱动
func NewStaticBrowser(opts BrowserOptions) *StaticBrowser {
	return &StaticBrowser{opts: opts}
}

// NewPage 每个标签页拥有独立的collector与cookie
func (b *StaticBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("创建cookie jar失败: %w", err)
	}

	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if b.opts.UserAgent != "" {
		options = append(options, colly.UserAgent(b.opts.UserAgent))
	}
	c := colly.NewCollector(options...)
	c.SetCookieJar(jar)
	if b.opts.NavTimeout > 0 {
		c.SetRequestTimeout(b.opts.NavTimeout)
	}

	p := &staticPage{collector: c}
	headers := b.opts.Headers
	c.OnRequest(func(r *colly.Request) {
		for name := range headers {
			r.Headers.Set(name, headers.Get(name))
		}
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		p.doc = e.DOM
	})
	return p, nil
}

// Close 无需释放
func (b *StaticBrowser) Close() error {
	return nil
}

type staticPage struct {
	collector *colly.Collector
	doc       *goquery.Selection
}

func (p *staticPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.doc = nil
	if err := p.collector.Visit(url); err != nil {
		return fmt.Errorf("导航到 %s 失败: %w", url, err)
	}
	if p.doc == nil {
		return fmt.Errorf("导航到 %s 失败: 响应不是HTML", url)
	}
	utils.Debugf("静态抓取: %s", url)
	return nil
}

func (p *staticPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.doc == nil {
		return false, nil
	}
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *staticPage) QueryOne(ctx context.Context, selector string) (Element, error) {
	if p.doc == nil {
		return nil, nil
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return &staticElement{sel: sel}, nil
}

func (p *staticPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if p.doc == nil {
		return nil, nil
	}
	var out []Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{sel: s})
	})
	return out, nil
}

func (p *staticPage) CollectPairs(ctx context.Context, q PairQuery) (map[string]string, error) {
	out := make(map[string]string)
	if p.doc == nil {
		return out, nil
	}
	p.doc.Find(q.Item).Each(func(_ int, s *goquery.Selection) {
		k := s.Find(q.Key).First()
		v := s.Find(q.Value).First()
		if k.Length() > 0 && v.Length() > 0 {
			out[strings.TrimSpace(k.Text())] = strings.TrimSpace(v.Text())
		}
	})
	return out, nil
}

func (p *staticPage) ScrollToBottom(ctx context.Context) error {
	return nil
}

// ScrollHeight 静态文档不会增长,以节点数代替高度
func (p *staticPage) ScrollHeight(ctx context.Context) (int, error) {
	if p.doc == nil {
		return 0, nil
	}
	return p.doc.Find("*").Length(), nil
}

func (p *staticPage) Reset(ctx context.Context) error {
	p.doc = nil
	return nil
}

func (p *staticPage) Close() error {
	p.doc = nil
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func (e *staticElement) Text() (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) Attr(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) Click(ctx context.Context) error {
	return ctx.Err()
}

func (e *staticElement) QueryOne(selector string) (Element, error) {
	sel := e.sel.Find(selector).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return &staticElement{sel: sel}, nil
}
