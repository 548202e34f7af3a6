package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const logoBaseURL = "https://static.kinolights.com/icon/btn_squircle_"

// Platform 流媒体平台
type Platform struct {
	Key     string `json:"key"`
	Name    string `json:"name"` // 站点显示名称,用于精确匹配
	Price   int    `json:"price"`
	LogoURL string `json:"logo_url"`
}

func platform(key, name string, price int) Platform {
	return Platform{Key: key, Name: name, Price: price, LogoURL: logoBaseURL + key + ".png"}
}

// Platforms 固定的平台目录,顺序即种子写入顺序
var Platforms = []Platform{
	platform("netflix", "넷플릭스", 5500),
	platform("tving", "티빙", 5500),
	platform("coupangplay", "쿠팡플레이", 7890),
	platform("wavve", "웨이브", 5500),
	platform("disneyplus", "디즈니+", 9900),
	platform("watcha", "왓챠", 7900),
	platform("laftel", "라프텔", 4900),
	platform("lguplus", "U+모바일tv", 6490),
	platform("amazon", "아마존 프라임 비디오", 5500),
	platform("cinefox", "씨네폭스", 9900),
}

var platformsByName = func() map[string]Platform {
	m := make(map[string]Platform, len(Platforms))
	for _, p := range Platforms {
		m[p.Name] = p
	}
	return m
}()

// zeroWidth 零宽字符集合
var zeroWidth = runes.Predicate(func(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
})

// NormalizePlatformName 去除零宽字符与首尾空白,并做NFC规范化
func NormalizePlatformName(raw string) string {
	t := transform.Chain(runes.Remove(zeroWidth), norm.NFC)
	out, _, err := transform.String(t, raw)
	if err != nil {
		out = raw
	}
	return strings.TrimFunc(out, unicode.IsSpace)
}

// ClassifyPlatform 将页面上的平台名映射到目录中的平台
// 只做精确匹配,未知名称返回 false
func ClassifyPlatform(raw string) (Platform, bool) {
	p, ok := platformsByName[NormalizePlatformName(raw)]
	return p, ok
}
