package crawlers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string]*fakeElement
	clicks   int
	clickErr error
	blocked  bool // Click 阻塞到 ctx 结束
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attr(name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.clicks++
	if e.blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	return e.clickErr
}

func (e *fakeElement) QueryOne(selector string) (Element, error) {
	if c, ok := e.children[selector]; ok {
		return c, nil
	}
	return nil, nil
}

func link(href string) *fakeElement {
	return &fakeElement{attrs: map[string]string{"href": href}}
}

type fakePage struct {
	mu sync.Mutex

	navigateErr error
	navigated   []string

	elements map[string][]*fakeElement
	pairs    map[string]string
	pairsErr error

	heights     []int
	growing     bool
	heightCalls int
	scrolls     int

	resetFailures int
	resets        int
	closed        bool
}

func newFakePage() *fakePage {
	return &fakePage{elements: make(map[string][]*fakeElement)}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navigateErr
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	return len(p.elements[selector]) > 0, nil
}

func (p *fakePage) QueryOne(ctx context.Context, selector string) (Element, error) {
	if els := p.elements[selector]; len(els) > 0 {
		return els[0], nil
	}
	return nil, nil
}

func (p *fakePage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	var out []Element
	for _, el := range p.elements[selector] {
		out = append(out, el)
	}
	return out, nil
}

func (p *fakePage) CollectPairs(ctx context.Context, q PairQuery) (map[string]string, error) {
	if p.pairsErr != nil {
		return nil, p.pairsErr
	}
	return p.pairs, nil
}

func (p *fakePage) ScrollToBottom(ctx context.Context) error {
	p.scrolls++
	return nil
}

func (p *fakePage) ScrollHeight(ctx context.Context) (int, error) {
	i := p.heightCalls
	p.heightCalls++
	if p.growing {
		return (i + 1) * 100, nil
	}
	if len(p.heights) == 0 {
		return 0, nil
	}
	if i >= len(p.heights) {
		return p.heights[len(p.heights)-1], nil
	}
	return p.heights[i], nil
}

func (p *fakePage) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	if p.resetFailures > 0 {
		p.resetFailures--
		return errors.New("reset failed")
	}
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeBrowser struct {
	created   atomic.Int32
	failAfter int32 // >0 时第 failAfter+1 次起创建失败
	newPage   func() *fakePage
	mu        sync.Mutex
	pages     []*fakePage
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	n := b.created.Add(1)
	if b.failAfter > 0 && n > b.failAfter {
		return nil, errors.New("browser crashed")
	}
	var p *fakePage
	if b.newPage != nil {
		p = b.newPage()
	} else {
		p = newFakePage()
	}
	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.mu.Unlock()
	return p, nil
}

func (b *fakeBrowser) Close() error { return nil }
