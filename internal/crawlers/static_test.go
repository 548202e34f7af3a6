package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

const titleHTML = `<!DOCTYPE html>
<html><head><title>kino</title></head><body>
<div class="title-kr">기생충</div>
<button class="price-tab">정액제</button>
<ul>
  <li class="movie-price-item">
    <span class="name">넷플릭스</span>
    <a href="https://link.example/r?url=https%3A%2F%2Fwww.netflix.com%2Ftitle%2F81221938">보기</a>
    <span class="date">종료예정일: 2024.05.01</span>
  </li>
  <li class="movie-price-item">
    <span class="name">왓챠</span>
    <span class="date">공개예정일: 2024.06.01</span>
  </li>
</ul>
<button class="more">더보기</button>
<div class="backdrop"><div style="background-image: url('https://img.example/bg.jpg')"></div></div>
<div class="metadata__item"><span class="item__title">장르</span><span class="item__body"> 드라마 </span></div>
<div class="metadata__item"><span class="item__title">러닝타임</span><span class="item__body">132분</span></div>
<div class="synopsis">  가난한 가족 이야기 </div>
<div class="poster"><img src="https://img.example/poster.jpg"></div>
</body></html>`

const noOfferHTML = `<html><body><div class="title-kr">빈 작품</div></body></html>`

const listingHTML = `<html><body>
<div class="contents-wrap">
  <a href="/title/1001">a</a>
  <a href="/title/1002">b</a>
  <a href="/title/1001">a again</a>
  <a href="/title/1003">c</a>
</div>
</body></html>`

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/title/1001", html(titleHTML))
	mux.HandleFunc("/title/1002", html(noOfferHTML))
	mux.HandleFunc("/title/1003", html(`<html><body><p>점검 중</p></body></html>`))
	mux.HandleFunc("/new", html(listingHTML))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newStaticTestPage(t *testing.T) Page {
	t.Helper()
	opts := DefaultBrowserOptions()
	opts.NavTimeout = 5 * time.Second
	page, err := NewStaticBrowser(opts).NewPage(context.Background())
	if err != nil {
		t.Fatalf("创建静态页面失败: %v", err)
	}
	return page
}

func TestStatic_ExtractDetail(t *testing.T) {
	srv := newTestSite(t)
	page := newStaticTestPage(t)
	x := &DetailExtractor{TitleURL: srv.URL + "/title/", ElementTimeout: time.Second}

	rec, err := x.Extract(context.Background(), page, models.Target{ExternalID: "1001"})
	if err != nil {
		t.Fatalf("抽取失败: %v", err)
	}
	if rec.Item.Title != "기생충" || rec.Item.Genre != "드라마" {
		t.Errorf("基本信息错误: %+v", rec.Item)
	}
	if rec.Item.Synopsis != "가난한 가족 이야기" {
		t.Errorf("简介错误: %q", rec.Item.Synopsis)
	}
	if rec.Item.BackdropURL == nil || *rec.Item.BackdropURL != "https://img.example/bg.jpg" {
		t.Errorf("背景图错误: %v", rec.Item.BackdropURL)
	}
	if len(rec.Windows) != 2 {
		t.Fatalf("窗口数错误: %d", len(rec.Windows))
	}
	if rec.Windows[0].URL != "https://www.netflix.com/title/81221938" {
		t.Errorf("跳转链接未解开: %s", rec.Windows[0].URL)
	}
	if rec.Windows[1].URL != SearchURL("기생충") {
		t.Errorf("无链接时应使用搜索地址: %s", rec.Windows[1].URL)
	}
}

func TestStatic_ExtractFailures(t *testing.T) {
	srv := newTestSite(t)
	page := newStaticTestPage(t)
	x := &DetailExtractor{TitleURL: srv.URL + "/title/", ElementTimeout: time.Second}

	tests := []struct {
		id   string
		want error
	}{
		{"1002", ErrNoAvailability},
		{"1003", ErrElementTimeout},
		{"404", ErrNavigation},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := x.Extract(context.Background(), page, models.Target{ExternalID: tt.id})
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v, 得到 %v", tt.want, err)
			}
		})
	}
}

func TestStatic_CollectListing(t *testing.T) {
	srv := newTestSite(t)
	page := newStaticTestPage(t)

	src := models.Source{
		Name:       "upcoming",
		Kind:       models.SourceUpcoming,
		URL:        srv.URL + "/new?tab=upcoming",
		Strategies: models.ListingStrategies(),
	}
	c := &IdentifierCollector{ScrollLimit: 100}
	result := c.Collect(context.Background(), page, src)

	if result.Err != nil {
		t.Fatalf("采集失败: %v", result.Err)
	}
	if !reflect.DeepEqual(result.IDs, []string{"1001", "1002", "1003"}) {
		t.Errorf("ID错误: %v", result.IDs)
	}
	if result.Scrolls != 1 {
		t.Errorf("静态页面高度不变,应只滚动一次: %d", result.Scrolls)
	}
}

func TestStatic_SchedulerEndToEnd(t *testing.T) {
	srv := newTestSite(t)
	opts := DefaultBrowserOptions()
	pool := NewPagePool(NewStaticBrowser(opts), 2, nil)
	defer pool.Close()

	x := &DetailExtractor{TitleURL: srv.URL + "/title/", ElementTimeout: time.Second}
	targets := models.NewTargets([]string{"1001", "1002", "1003"}, true)

	result := NewScheduler(pool, x, 2, 0).Run(context.Background(), targets)
	if result.Attempted != 3 || len(result.Records) != 1 || len(result.Failures) != 2 {
		t.Fatalf("结果错误: attempted=%d records=%d failures=%d", result.Attempted, len(result.Records), len(result.Failures))
	}
	if r := result.Records[0].Item.Rank; r == nil || *r != 1 {
		t.Errorf("排名错误: %v", r)
	}
}
