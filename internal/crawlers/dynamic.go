package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodBrowser 基于Rod的浏览器(dynamic模式)
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     BrowserOptions
}

// LaunchRodBrowser 启动浏览器并连接
func LaunchRodBrowser(opts BrowserOptions) (*RodBrowser, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s (headless=%v)", controlURL, opts.Headless)
	return &RodBrowser{browser: browser, launcher: l, opts: opts}, nil
}

// NewPage 创建一个带移动端模拟的标签页
func (b *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}

	if b.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.opts.UserAgent}); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}
	if b.opts.ViewportWidth > 0 && b.opts.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.opts.ViewportWidth,
			Height:            b.opts.ViewportHeight,
			DeviceScaleFactor: 2.75,
			Mobile:            true,
		})
		if err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("设置视口失败: %w", err)
		}
	}
	if len(b.opts.Headers) > 0 {
		dict := make([]string, 0, len(b.opts.Headers)*2)
		for name := range b.opts.Headers {
			dict = append(dict, name, b.opts.Headers.Get(name))
		}
		if _, err := page.SetExtraHeaders(dict); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("设置请求头失败: %w", err)
		}
	}

	return &rodPage{
		page:          page,
		navTimeout:    orDefault(b.opts.NavTimeout),
		actionTimeout: orDefault(b.opts.ActionTimeout),
	}, nil
}

// Close 关闭浏览器并清理进程
func (b *RodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	if err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已关闭")
	return nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// rodPage 每个 CDP 调用都受 navTimeout 或 actionTimeout 约束
type rodPage struct {
	page          *rod.Page
	navTimeout    time.Duration
	actionTimeout time.Duration
}

// bounded 返回带 actionTimeout 的页面
func (p *rodPage) bounded(ctx context.Context) (*rod.Page, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	return p.page.Context(tctx), cancel
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	tctx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	pg := p.page.Context(tctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("导航到 %s 失败: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败: %w", err)
	}
	return nil
}

func (p *rodPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := p.page.Context(tctx).Element(selector)
	if err == nil {
		return true, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, err
}

func (p *rodPage) QueryOne(ctx context.Context, selector string) (Element, error) {
	pg, cancel := p.bounded(ctx)
	defer cancel()

	has, el, err := pg.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return p.element(ctx, el), nil
}

func (p *rodPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	pg, cancel := p.bounded(ctx)
	defer cancel()

	els, err := pg.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, p.element(ctx, el))
	}
	return out, nil
}

const collectPairsJS = `(item, key, value) => {
	const out = {};
	document.querySelectorAll(item).forEach((el) => {
		const k = el.querySelector(key);
		const v = el.querySelector(value);
		if (k && v) {
			out[k.innerText.trim()] = v.innerText.trim();
		}
	});
	return out;
}`

// element 查询用的超时上下文在返回后取消,元素改绑到调用方的 ctx
func (p *rodPage) element(ctx context.Context, el *rod.Element) *rodElement {
	return &rodElement{el: el.Context(ctx), timeout: p.actionTimeout}
}

func (p *rodPage) CollectPairs(ctx context.Context, q PairQuery) (map[string]string, error) {
	pg, cancel := p.bounded(ctx)
	defer cancel()

	res, err := pg.Eval(collectPairsJS, q.Item, q.Key, q.Value)
	if err != nil {
		return nil, fmt.Errorf("执行页面脚本失败: %w", err)
	}
	out := make(map[string]string)
	for k, v := range res.Value.Map() {
		out[k] = v.Str()
	}
	return out, nil
}

func (p *rodPage) ScrollToBottom(ctx context.Context) error {
	pg, cancel := p.bounded(ctx)
	defer cancel()

	_, err := pg.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p *rodPage) ScrollHeight(ctx context.Context) (int, error) {
	pg, cancel := p.bounded(ctx)
	defer cancel()

	res, err := pg.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// cleanStorageJS 清理 localStorage/sessionStorage/cookie
const cleanStorageJS = `() => {
	if (typeof localStorage !== 'undefined' && localStorage !== null) {
		try { localStorage.clear(); } catch (e) {}
	}
	if (typeof sessionStorage !== 'undefined' && sessionStorage !== null) {
		try { sessionStorage.clear(); } catch (e) {}
	}
	if (typeof document !== 'undefined' && document !== null && document.cookie) {
		try {
			var cookies = document.cookie.split(";");
			for (var i = 0; i < cookies.length; i++) {
				var c = cookies[i];
				var eqPos = c.indexOf("=");
				var name = eqPos > -1 ? c.substr(0, eqPos) : c;
				document.cookie = name.replace(/^ +/, "") + "=;expires=Thu, 01 Jan 1970 00:00:00 UTC;path=/";
			}
		} catch (e) {}
	}
	return true;
}`

func (p *rodPage) Reset(ctx context.Context) error {
	pg, cancel := p.bounded(ctx)
	defer cancel()

	if _, err := pg.Evaluate(&rod.EvalOptions{JS: cleanStorageJS}); err != nil {
		return fmt.Errorf("清理标签页状态失败: %w", err)
	}
	if err := pg.Navigate("about:blank"); err != nil {
		return fmt.Errorf("重置标签页失败: %w", err)
	}
	return nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attr(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Click 被遮挡或禁用的元素会让 rod 一直重试,必须限时
func (e *rodElement) Click(ctx context.Context) error {
	el := e.el.Context(ctx).Timeout(e.timeout)
	defer el.CancelTimeout()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) QueryOne(selector string) (Element, error) {
	has, child, err := e.el.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return &rodElement{el: child, timeout: e.timeout}, nil
}
