package crawlers

import (
	"net/url"
	"regexp"
	"strconv"
	"time"
)

var (
	expirePattern   = regexp.MustCompile(`종료예정일\s*:\s*(\d{4}\.\d{2}\.\d{2})`)
	releasePattern  = regexp.MustCompile(`공개예정일\s*:\s*(\d{4}\.\d{2}\.\d{2})`)
	backdropPattern = regexp.MustCompile(`url\(['"]?(.*?)['"]?\)`)
	integerPattern  = regexp.MustCompile(`\d+`)
)

// SearchURLPrefix 报价条目没有链接时使用的搜索地址
const SearchURLPrefix = "https://search.naver.com/search.naver?query="

// UnwrapRedirect 跳转链接取出 url 参数中的真实地址,其余原样返回
func UnwrapRedirect(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("url"); target != "" {
		return target
	}
	return raw
}

// SearchURL 按标题构造搜索地址
func SearchURL(title string) string {
	return SearchURLPrefix + url.QueryEscape(title)
}

// ParseDateLine 解析报价条目的日期文本
// 下线日期优先,两者都没有时返回 nil, nil
func ParseDateLine(text string) (release, expire *time.Time) {
	if m := expirePattern.FindStringSubmatch(text); m != nil {
		if t, err := time.ParseInLocation("2006.01.02", m[1], time.UTC); err == nil {
			return nil, &t
		}
	}
	if m := releasePattern.FindStringSubmatch(text); m != nil {
		if t, err := time.ParseInLocation("2006.01.02", m[1], time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, nil
}

// ParseBackdropURL 从 style 属性中取出背景图地址
func ParseBackdropURL(style string) *string {
	m := backdropPattern.FindStringSubmatch(style)
	if m == nil || m[1] == "" {
		return nil
	}
	s := m[1]
	return &s
}

// ParseRunningTime 取文本中第一个整数作为时长(分钟)
func ParseRunningTime(text string) *int {
	m := integerPattern.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}
