package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/rs/zerolog/log"
)

// CollectResult 列表页采集结果
// Err 非空表示采集失败(此时 IDs 为空),IDs 为空且 Err 为空表示列表确实为空
type CollectResult struct {
	Source  string
	IDs     []string // 按页面出现顺序去重
	Scrolls int
	Err     error
}

// Outcome 将采集结果归类
func (r CollectResult) Outcome() models.SourceOutcome {
	switch {
	case r.Err != nil:
		return models.OutcomeFailed
	case len(r.IDs) == 0:
		return models.OutcomeEmpty
	default:
		return models.OutcomeOK
	}
}

// IdentifierCollector 列表页作品ID采集器
type IdentifierCollector struct {
	ScrollLimit    int
	SettleDelay    time.Duration
	ActionDelay    time.Duration
	ElementTimeout time.Duration // 单次点击的上限
}

// NewIdentifierCollector 根据抓取配置创建采集器
func NewIdentifierCollector(cfg models.CrawlConfig) *IdentifierCollector {
	return &IdentifierCollector{
		ScrollLimit:    cfg.ScrollLimit,
		SettleDelay:    cfg.SettleDelay(),
		ActionDelay:    cfg.ActionDelay(),
		ElementTimeout: cfg.ElementTimeout(),
	}
}

// Collect 打开列表页,滚动到高度稳定后提取作品ID
// 失败不会panic,错误记录在结果中
func (c *IdentifierCollector) Collect(ctx context.Context, page Page, src models.Source) (result CollectResult) {
	result.Source = src.Name
	logger := log.With().Str("source", src.Name).Logger()

	defer func() {
		if r := recover(); r != nil {
			result.IDs = nil
			result.Err = fmt.Errorf("采集列表页时发生panic: %v", r)
			logger.Error().Err(result.Err).Msg("列表页采集失败")
		}
	}()

	if err := page.Navigate(ctx, src.URL); err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrNavigation, err)
		logger.Error().Err(err).Str("url", src.URL).Msg("列表页导航失败")
		return result
	}

	for _, selector := range src.Prepare {
		c.clickIfPresent(ctx, page, selector)
	}

	scrolls, err := ScrollUntilStable(ctx, page, c.ScrollLimit, c.SettleDelay)
	result.Scrolls = scrolls
	if err != nil {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}
		logger.Warn().Err(err).Int("scrolls", scrolls).Msg("滚动加载中断,使用已加载内容")
	}

	ids, err := ExtractIDs(ctx, page, src.Strategies)
	if err != nil {
		result.Err = fmt.Errorf("提取作品ID失败: %w", err)
		logger.Error().Err(err).Msg("列表页采集失败")
		return result
	}
	if src.Limit > 0 && len(ids) > src.Limit {
		ids = ids[:src.Limit]
	}
	result.IDs = ids

	logger.Info().Int("count", len(ids)).Int("scrolls", scrolls).Msg("列表页采集完成")
	return result
}

func (c *IdentifierCollector) clickIfPresent(ctx context.Context, page Page, selector string) {
	el, err := page.QueryOne(ctx, selector)
	if err != nil || el == nil {
		return
	}
	if err := clickWithin(ctx, el, c.ElementTimeout); err != nil {
		log.Debug().Err(err).Str("selector", selector).Msg("点击失败,忽略")
		return
	}
	_ = sleep(ctx, c.ActionDelay)
}

// ScrollUntilStable 反复滚动到底部,直到连续两次测得的高度相同或达到 limit 次
// 返回实际滚动次数
func ScrollUntilStable(ctx context.Context, page Page, limit int, settle time.Duration) (int, error) {
	last, err := page.ScrollHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("读取页面高度失败: %w", err)
	}

	for i := 0; i < limit; i++ {
		if err := page.ScrollToBottom(ctx); err != nil {
			return i, fmt.Errorf("滚动失败: %w", err)
		}
		if err := sleep(ctx, settle); err != nil {
			return i + 1, err
		}
		height, err := page.ScrollHeight(ctx)
		if err != nil {
			return i + 1, fmt.Errorf("读取页面高度失败: %w", err)
		}
		if height == last {
			return i + 1, nil
		}
		last = height
	}
	return limit, nil
}

// ExtractIDs 按顺序尝试各提取策略,返回第一个非空结果
// 结果按出现顺序去重
func ExtractIDs(ctx context.Context, page Page, strategies []models.IDStrategy) ([]string, error) {
	for i, s := range strategies {
		elements, err := page.QueryAll(ctx, s.Selector)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)
		var ids []string
		for _, el := range elements {
			value := readAttr(el, s.Attr)
			id, ok := s.Match(value)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}

		if len(ids) > 0 {
			if i > 0 {
				log.Debug().Str("selector", s.Selector).Msg("使用备用选择器提取作品ID")
			}
			return ids, nil
		}
	}
	return nil, nil
}
