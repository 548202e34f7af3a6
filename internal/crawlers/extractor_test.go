package crawlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

func offer(name, href, date string) *fakeElement {
	children := map[string]*fakeElement{
		".name": {text: name},
	}
	if href != "" {
		children["a"] = link(href)
	}
	if date != "" {
		children[".date"] = &fakeElement{text: date}
	}
	return &fakeElement{children: children}
}

func detailPage() *fakePage {
	page := newFakePage()
	page.elements[".title-kr"] = []*fakeElement{{text: " 기생충 "}}
	page.elements[".price-tab"] = []*fakeElement{{}}
	page.elements[".movie-price-item"] = []*fakeElement{
		offer("넷플릭스", "https://x/?url=https%3A%2F%2Fwww.netflix.com%2Ftitle%2F1", "종료예정일: 2024.05.01"),
		offer("왓챠\u200b", "", "공개예정일: 2024.06.01"),
		offer("유튜브", "https://youtube.com", ""),
	}
	page.elements["div.backdrop div[style]"] = []*fakeElement{
		{attrs: map[string]string{"style": "background-image: url('https://img.example/bg.jpg')"}},
	}
	page.elements["div.synopsis"] = []*fakeElement{{text: "  가난한 가족 \n"}}
	page.elements["div.poster img"] = []*fakeElement{{attrs: map[string]string{"src": "https://img.example/poster.jpg"}}}
	page.pairs = map[string]string{"장르": "드라마", "러닝타임": "132분"}
	return page
}

func newTestExtractor() *DetailExtractor {
	return &DetailExtractor{
		TitleURL:       "https://m.kinolights.com/title/",
		ElementTimeout: time.Second,
	}
}

func TestExtract_Full(t *testing.T) {
	page := detailPage()
	x := newTestExtractor()

	rec, err := x.Extract(context.Background(), page, models.Target{ExternalID: "1001", Rank: 3})
	if err != nil {
		t.Fatalf("抽取失败: %v", err)
	}

	if page.navigated[0] != "https://m.kinolights.com/title/1001" {
		t.Errorf("详情页地址错误: %s", page.navigated[0])
	}

	item := rec.Item
	if item.ExternalID != 1001 || item.Title != "기생충" {
		t.Errorf("基本信息错误: %+v", item)
	}
	if item.Genre != "드라마" {
		t.Errorf("类型错误: %s", item.Genre)
	}
	if item.RunningTime == nil || *item.RunningTime != 132 {
		t.Errorf("时长错误: %v", item.RunningTime)
	}
	if item.Synopsis != "가난한 가족" {
		t.Errorf("简介应去除首尾空白: %q", item.Synopsis)
	}
	if item.ThumbnailURL != "https://img.example/poster.jpg" {
		t.Errorf("海报错误: %s", item.ThumbnailURL)
	}
	if item.BackdropURL == nil || *item.BackdropURL != "https://img.example/bg.jpg" {
		t.Errorf("背景图错误: %v", item.BackdropURL)
	}
	if item.Rank == nil || *item.Rank != 3 {
		t.Errorf("排名应来自目标: %v", item.Rank)
	}

	if len(rec.Windows) != 2 {
		t.Fatalf("未知平台应被跳过, 窗口数: %d", len(rec.Windows))
	}
	netflix := rec.Windows[0]
	if netflix.Platform.Key != "netflix" || netflix.URL != "https://www.netflix.com/title/1" {
		t.Errorf("Netflix窗口错误: %+v", netflix)
	}
	if netflix.ExpireDate == nil || netflix.ExpireDate.Format(models.DateLayout) != "2024-05-01" || netflix.ReleaseDate != nil {
		t.Errorf("Netflix日期错误: %v %v", netflix.ReleaseDate, netflix.ExpireDate)
	}
	watcha := rec.Windows[1]
	if watcha.Platform.Key != "watcha" || watcha.URL != SearchURL("기생충") {
		t.Errorf("无链接时应使用搜索地址: %+v", watcha)
	}
	if watcha.ReleaseDate == nil || watcha.ReleaseDate.Format(models.DateLayout) != "2024-06-01" || watcha.ExpireDate != nil {
		t.Errorf("Watcha日期错误: %v %v", watcha.ReleaseDate, watcha.ExpireDate)
	}
}

func TestExtract_Defaults(t *testing.T) {
	page := detailPage()
	page.pairs = map[string]string{}
	delete(page.elements, "div.backdrop div[style]")

	rec, err := newTestExtractor().Extract(context.Background(), page, models.Target{ExternalID: "5"})
	if err != nil {
		t.Fatalf("抽取失败: %v", err)
	}
	if rec.Item.Genre != "Unknown" {
		t.Errorf("缺少类型时应为 Unknown: %s", rec.Item.Genre)
	}
	if rec.Item.RunningTime != nil || rec.Item.BackdropURL != nil || rec.Item.Rank != nil {
		t.Errorf("缺失字段应为 nil: %+v", rec.Item)
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		mutate   func(p *fakePage)
		wantKind error
	}{
		{"无效ID", "abc", func(p *fakePage) {}, ErrInvalidID},
		{"导航失败", "1", func(p *fakePage) { p.navigateErr = errors.New("timeout") }, ErrNavigation},
		{"标题未出现", "1", func(p *fakePage) { delete(p.elements, ".title-kr") }, ErrElementTimeout},
		{"没有报价条目", "1", func(p *fakePage) { delete(p.elements, ".movie-price-item") }, ErrNoAvailability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := detailPage()
			tt.mutate(page)

			rec, err := newTestExtractor().Extract(context.Background(), page, models.Target{ExternalID: tt.id})
			if rec != nil {
				t.Errorf("失败时不应返回记录")
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("错误类型错误: 期望 %v, 得到 %v", tt.wantKind, err)
			}
			var xerr *ExtractionError
			if !errors.As(err, &xerr) || xerr.ExternalID != tt.id {
				t.Errorf("应返回 *ExtractionError: %v", err)
			}
		})
	}
}

func TestExtract_MetadataErrorIgnored(t *testing.T) {
	page := detailPage()
	page.pairsErr = errors.New("eval failed")

	rec, err := newTestExtractor().Extract(context.Background(), page, models.Target{ExternalID: "9"})
	if err != nil {
		t.Fatalf("元数据失败不应导致抽取失败: %v", err)
	}
	if rec.Item.Genre != "Unknown" {
		t.Errorf("类型应为默认值: %s", rec.Item.Genre)
	}
}

func TestFailureKind(t *testing.T) {
	err := extractionError("1", ErrElementTimeout, errors.New("x"))
	if FailureKind(err) != "element_timeout" {
		t.Errorf("失败类型错误: %s", FailureKind(err))
	}
	if FailureKind(errors.New("other")) != "unknown" {
		t.Error("未知错误应为 unknown")
	}
}

func TestExtract_BlockedClickAbandoned(t *testing.T) {
	page := detailPage()
	tab := &fakeElement{blocked: true}
	more := &fakeElement{blocked: true}
	page.elements[".price-tab"] = []*fakeElement{tab}
	page.elements["button.more"] = []*fakeElement{more}

	x := newTestExtractor()
	x.ElementTimeout = 20 * time.Millisecond

	done := make(chan struct{})
	var (
		rec *models.CrawlRecord
		err error
	)
	go func() {
		defer close(done)
		rec, err = x.Extract(context.Background(), page, models.Target{ExternalID: "1001"})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("被遮挡的按钮不应让抽取一直等待")
	}
	if err != nil {
		t.Fatalf("点击超时不应导致抽取失败: %v", err)
	}
	if tab.clicks != 1 || more.clicks != 1 {
		t.Errorf("每个按钮应尝试点击一次: tab=%d more=%d", tab.clicks, more.clicks)
	}
	if len(rec.Windows) != 2 {
		t.Errorf("点击放弃后仍应继续抽取窗口, 得到 %d", len(rec.Windows))
	}
}
