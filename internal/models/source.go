package models

import (
	"fmt"
	"regexp"
	"strings"
)

// SourceKind 列表来源类型
type SourceKind string

const (
	SourceExplore  SourceKind = "explore"
	SourceUpcoming SourceKind = "upcoming"
	SourceExpiring SourceKind = "expiring"
	SourceRanking  SourceKind = "ranking"
)

// DefaultBaseURL 站点根地址
const DefaultBaseURL = "https://m.kinolights.com"

// RankingLimit 排行榜最多保留的作品数
const RankingLimit = 100

// IDStrategy 从列表页提取作品ID的一种方式
// 在 Selector 命中的元素上读取 Attr,Pattern 的第一个子匹配(无分组时为整体匹配)即ID
type IDStrategy struct {
	Selector string
	Attr     string
	Pattern  *regexp.Regexp
}

// Match 从属性值中提取ID
func (s IDStrategy) Match(value string) (string, bool) {
	m := s.Pattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], m[1] != ""
	}
	return m[0], true
}

// Source 一个列表来源
type Source struct {
	Name       string
	Kind       SourceKind
	URL        string
	Prepare    []string     // 滚动前尝试点击的选择器
	Strategies []IDStrategy // 按顺序尝试,前一个为空才用下一个
	Limit      int          // 去重后截断,0 表示不限
}

// Ranked 是否按采集顺序赋予排名
func (s Source) Ranked() bool {
	return s.Kind == SourceRanking
}

// Status 该来源对应的生命周期标签
func (s Source) Status() LifecycleStatus {
	switch s.Kind {
	case SourceUpcoming:
		return StatusUpcoming
	case SourceExpiring:
		return StatusExpiring
	default:
		return StatusNone
	}
}

var (
	digitsPattern = regexp.MustCompile(`\d+`)
	titlePattern  = regexp.MustCompile(`/title/(\d+)`)
)

// ListingStrategies 列表页通用的ID提取策略
func ListingStrategies() []IDStrategy {
	return []IDStrategy{
		{Selector: "div.contents-wrap a", Attr: "href", Pattern: digitsPattern},
		{Selector: "div.container__contents a", Attr: "href", Pattern: digitsPattern},
	}
}

// RankingStrategies 排行榜的ID提取策略
func RankingStrategies() []IDStrategy {
	return []IDStrategy{
		{Selector: ".content-ranking-list .ranking-item a[href*='/title/']", Attr: "href", Pattern: titlePattern},
		{Selector: "a[href*='/title/']", Attr: "href", Pattern: titlePattern},
	}
}

// DefaultSources 默认的四个来源,按处理顺序排列
func DefaultSources(baseURL string) []Source {
	baseURL = strings.TrimRight(baseURL, "/")
	return []Source{
		{
			Name:       string(SourceExplore),
			Kind:       SourceExplore,
			URL:        baseURL + "/discover/explore?hideBack=true",
			Prepare:    []string{"button.slide__chip"},
			Strategies: ListingStrategies(),
		},
		{
			Name:       string(SourceUpcoming),
			Kind:       SourceUpcoming,
			URL:        baseURL + "/new?tab=upcoming",
			Strategies: ListingStrategies(),
		},
		{
			Name:       string(SourceExpiring),
			Kind:       SourceExpiring,
			URL:        baseURL + "/new?tab=expired",
			Strategies: ListingStrategies(),
		},
		{
			Name:       string(SourceRanking),
			Kind:       SourceRanking,
			URL:        baseURL + "/ranking",
			Strategies: RankingStrategies(),
			Limit:      RankingLimit,
		},
	}
}

// SelectSources 按名称筛选来源,保持默认顺序
// names 为空时返回全部
func SelectSources(all []Source, names []string) ([]Source, error) {
	if len(names) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = true
	}
	selected := make([]Source, 0, len(names))
	for _, s := range all {
		if wanted[s.Name] {
			selected = append(selected, s)
			delete(wanted, s.Name)
		}
	}
	for n := range wanted {
		return nil, fmt.Errorf("未知的来源: %s", n)
	}
	return selected, nil
}
