package crawlers

import (
	"context"
	"strings"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/rs/zerolog/log"
)

// 详情页选择器
const (
	selTitle       = ".title-kr"
	selPriceTab    = ".price-tab"
	selOfferEntry  = ".movie-price-item"
	selOfferName   = ".name"
	selOfferLink   = "a"
	selOfferDate   = ".date"
	selMoreButton  = "button.more"
	selBackdrop    = "div.backdrop div[style]"
	selSynopsis    = "div.synopsis"
	selPoster      = "div.poster img"
	metaKeyGenre   = "장르"
	metaKeyRunTime = "러닝타임"
	defaultGenre   = "Unknown"
)

var metadataQuery = PairQuery{Item: ".metadata__item", Key: ".item__title", Value: ".item__body"}

// Extractor 单个作品的详情抽取
type Extractor interface {
	Extract(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error)
}

// DetailExtractor 详情页抽取器
type DetailExtractor struct {
	TitleURL       string
	ElementTimeout time.Duration
	ActionDelay    time.Duration
}

// NewDetailExtractor 根据抓取配置创建抽取器
func NewDetailExtractor(cfg models.CrawlConfig) *DetailExtractor {
	return &DetailExtractor{
		TitleURL:       cfg.TitleURL,
		ElementTimeout: cfg.ElementTimeout(),
		ActionDelay:    cfg.ActionDelay(),
	}
}

// Extract 打开详情页并抽取作品与各平台窗口
// 失败时返回 *ExtractionError
func (x *DetailExtractor) Extract(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error) {
	id := target.ExternalID
	externalID, err := models.ParseExternalID(id)
	if err != nil {
		return nil, extractionError(id, ErrInvalidID, err)
	}

	if err := page.Navigate(ctx, x.TitleURL+id); err != nil {
		return nil, extractionError(id, ErrNavigation, err)
	}
	found, err := page.WaitFor(ctx, selTitle, x.ElementTimeout)
	if err != nil {
		return nil, extractionError(id, ErrNavigation, err)
	}
	if !found {
		return nil, extractionError(id, ErrElementTimeout, nil)
	}

	title := strings.TrimSpace(x.text(ctx, page, selTitle))

	x.click(ctx, page, selPriceTab)
	if err := sleep(ctx, x.ActionDelay); err != nil {
		return nil, extractionError(id, ErrNavigation, err)
	}

	entries, err := page.QueryAll(ctx, selOfferEntry)
	if err != nil {
		return nil, extractionError(id, ErrNavigation, err)
	}
	if len(entries) == 0 {
		return nil, extractionError(id, ErrNoAvailability, nil)
	}
	windows := parseOffers(id, title, entries)

	x.click(ctx, page, selMoreButton)
	var backdrop *string
	if el, err := page.QueryOne(ctx, selBackdrop); err == nil && el != nil {
		backdrop = ParseBackdropURL(readAttr(el, "style"))
	}

	metadata, err := page.CollectPairs(ctx, metadataQuery)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("读取元数据失败")
		metadata = map[string]string{}
	}
	genre := metadata[metaKeyGenre]
	if genre == "" {
		genre = defaultGenre
	}

	item := models.ContentItem{
		ExternalID:   externalID,
		Title:        title,
		Genre:        genre,
		Synopsis:     strings.TrimSpace(x.text(ctx, page, selSynopsis)),
		ThumbnailURL: x.attr(ctx, page, selPoster, "src"),
		BackdropURL:  backdrop,
		RunningTime:  ParseRunningTime(metadata[metaKeyRunTime]),
	}
	if target.Rank > 0 {
		rank := target.Rank
		item.Rank = &rank
	}

	return &models.CrawlRecord{Item: item, Windows: windows}, nil
}

// parseOffers 解析报价条目,未知平台跳过
func parseOffers(id, title string, entries []Element) []models.AvailabilityWindow {
	windows := make([]models.AvailabilityWindow, 0, len(entries))
	for _, entry := range entries {
		nameEl, err := entry.QueryOne(selOfferName)
		if err != nil || nameEl == nil {
			continue
		}
		raw := readText(nameEl)
		platform, ok := models.ClassifyPlatform(raw)
		if !ok {
			log.Warn().Str("id", id).Str("platform", strings.TrimSpace(raw)).Msg("未知平台,跳过该条目")
			continue
		}

		link := ""
		if linkEl, err := entry.QueryOne(selOfferLink); err == nil && linkEl != nil {
			link = UnwrapRedirect(readAttr(linkEl, "href"))
		}
		if link == "" {
			link = SearchURL(title)
		}

		var dateText string
		if dateEl, err := entry.QueryOne(selOfferDate); err == nil {
			dateText = readText(dateEl)
		}
		release, expire := ParseDateLine(dateText)

		windows = append(windows, models.AvailabilityWindow{
			Platform:    platform,
			URL:         link,
			ReleaseDate: release,
			ExpireDate:  expire,
		})
	}
	return windows
}

func (x *DetailExtractor) text(ctx context.Context, page Page, selector string) string {
	el, err := page.QueryOne(ctx, selector)
	if err != nil {
		return ""
	}
	return readText(el)
}

func (x *DetailExtractor) attr(ctx context.Context, page Page, selector, name string) string {
	el, err := page.QueryOne(ctx, selector)
	if err != nil {
		return ""
	}
	return readAttr(el, name)
}

// click 尽力点击,元素不存在或点击失败时忽略
func (x *DetailExtractor) click(ctx context.Context, page Page, selector string) {
	el, err := page.QueryOne(ctx, selector)
	if err != nil || el == nil {
		return
	}
	if err := clickWithin(ctx, el, x.ElementTimeout); err != nil {
		log.Debug().Err(err).Str("selector", selector).Msg("点击失败,忽略")
	}
}
