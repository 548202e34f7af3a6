package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PageHealthStatus 标签页健康状态
type PageHealthStatus struct {
	CleanFailureCount int       // 连续清理失败次数
	LastSuccessTime   time.Time // 最后一次成功清理时间
	IsDirty           bool      // 清理失败2次后标记,再失败则销毁
}

// PagePool 标签页池
// 每个worker独占一个标签页直到结束,池只负责创建/清理/替换
type PagePool struct {
	browser Browser
	size    int

	mu         sync.Mutex
	pageHealth map[Page]*PageHealthStatus
	closed     bool
}

// NewPagePool 创建标签页池,size 为同时存活的标签页上限
// monitor 可为空,非空时在 size 超过资源估算时给出警告
func NewPagePool(browser Browser, size int, monitor *ResourceMonitor) *PagePool {
	if size < 1 {
		size = 1
	}
	if monitor != nil {
		if maxPages := monitor.CalculateMaxPages(); size > maxPages {
			log.Warn().Msgf("配置的并发数 %d 超过资源估算的标签页上限 %d,可能导致内存不足", size, maxPages)
		}
		if ok, reason := monitor.CheckResourceAvailability(); !ok {
			log.Warn().Msgf("当前资源紧张: %s", reason)
		}
	}
	return &PagePool{
		browser:    browser,
		size:       size,
		pageHealth: make(map[Page]*PageHealthStatus),
	}
}

// Acquire 创建一个新标签页
func (pp *PagePool) Acquire(ctx context.Context) (Page, error) {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, fmt.Errorf("%w: 标签页池已关闭", ErrPageUnavailable)
	}
	if len(pp.pageHealth) >= pp.size {
		n := len(pp.pageHealth)
		pp.mu.Unlock()
		return nil, fmt.Errorf("%w: 标签页数已达上限 %d", ErrPageUnavailable, n)
	}
	pp.mu.Unlock()

	page, err := pp.browser.NewPage(ctx)
	if err != nil {
		log.Error().Err(err).Msg("创建标签页失败,浏览器可能已崩溃")
		return nil, fmt.Errorf("%w: %v", ErrPageUnavailable, err)
	}

	pp.mu.Lock()
	pp.pageHealth[page] = &PageHealthStatus{LastSuccessTime: time.Now()}
	current := len(pp.pageHealth)
	pp.mu.Unlock()

	log.Debug().Msgf("创建新标签页,当前标签页数: %d, 上限: %d", current, pp.size)
	return page, nil
}

// Recycle 清理标签页以处理下一个作品
// 第一次清理失败立即重试,第二次标记为脏,第三次销毁并换一个新标签页
func (pp *PagePool) Recycle(ctx context.Context, page Page) (Page, error) {
	pp.mu.Lock()
	health, ok := pp.pageHealth[page]
	pp.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: 标签页不属于该池", ErrPageUnavailable)
	}

	err := page.Reset(ctx)
	if err == nil {
		pp.markHealthy(health)
		return page, nil
	}

	pp.mu.Lock()
	health.CleanFailureCount++
	failures := health.CleanFailureCount
	pp.mu.Unlock()
	log.Warn().Err(err).Msgf("清理标签页状态失败 (第%d次失败)", failures)

	if failures == 1 {
		if err = page.Reset(ctx); err == nil {
			pp.markHealthy(health)
			log.Info().Msg("重试清理成功,标签页恢复正常")
			return page, nil
		}
		pp.mu.Lock()
		health.CleanFailureCount++
		failures = health.CleanFailureCount
		pp.mu.Unlock()
		log.Warn().Err(err).Msg("重试清理失败")
	}

	if failures == 2 {
		pp.mu.Lock()
		health.IsDirty = true
		pp.mu.Unlock()
		log.Warn().Msg("标签页标记为'脏'状态(清理失败2次),下次失败将销毁")
		return page, nil
	}

	log.Warn().Msg("清理失败超过2次,销毁并替换该标签页")
	pp.Release(page)
	return pp.Acquire(ctx)
}

func (pp *PagePool) markHealthy(health *PageHealthStatus) {
	pp.mu.Lock()
	health.CleanFailureCount = 0
	health.LastSuccessTime = time.Now()
	health.IsDirty = false
	pp.mu.Unlock()
}

// Release 关闭并移除标签页
func (pp *PagePool) Release(page Page) {
	if page == nil {
		return
	}
	pp.mu.Lock()
	_, ok := pp.pageHealth[page]
	delete(pp.pageHealth, page)
	pp.mu.Unlock()
	if !ok {
		return
	}
	if err := page.Close(); err != nil {
		log.Warn().Err(err).Msg("关闭标签页失败")
	}
}

// health 返回标签页的健康状态副本
func (pp *PagePool) health(page Page) (PageHealthStatus, bool) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	h, ok := pp.pageHealth[page]
	if !ok {
		return PageHealthStatus{}, false
	}
	return *h, true
}

// CurrentSize 当前存活的标签页数
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pageHealth)
}

// Close 关闭所有标签页
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	pages := make([]Page, 0, len(pp.pageHealth))
	for p := range pp.pageHealth {
		pages = append(pages, p)
	}
	pp.pageHealth = make(map[Page]*PageHealthStatus)
	pp.mu.Unlock()

	for _, p := range pages {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭标签页失败")
		}
	}
	log.Debug().Msg("标签页池已关闭")
	return nil
}
