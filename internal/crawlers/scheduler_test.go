package crawlers

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

// funcExtractor 用函数实现 Extractor
type funcExtractor func(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error)

func (f funcExtractor) Extract(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error) {
	return f(ctx, page, target)
}

func recordFor(target models.Target) *models.CrawlRecord {
	id, _ := strconv.ParseInt(target.ExternalID, 10, 64)
	item := models.ContentItem{ExternalID: id, Title: "t" + target.ExternalID}
	if target.Rank > 0 {
		rank := target.Rank
		item.Rank = &rank
	}
	return &models.CrawlRecord{Item: item}
}

func numberedIDs(n int) []string {
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, strconv.Itoa(i))
	}
	return ids
}

func TestScheduler_FailuresIsolated(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	x := funcExtractor(func(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)

		id, _ := strconv.Atoi(target.ExternalID)
		if id%5 == 0 {
			return nil, extractionError(target.ExternalID, ErrElementTimeout, nil)
		}
		return recordFor(target), nil
	})

	browser := &fakeBrowser{}
	pool := NewPagePool(browser, 5, nil)
	defer pool.Close()

	var progress atomic.Int32
	s := NewScheduler(pool, x, 5, 0)
	s.OnProgress = func(done, total int) {
		progress.Add(1)
		if total != 37 {
			t.Errorf("总数错误: %d", total)
		}
	}

	result := s.Run(context.Background(), models.NewTargets(numberedIDs(37), false))

	if len(result.Records) != 30 {
		t.Errorf("成功数错误: 期望 30, 得到 %d", len(result.Records))
	}
	if len(result.Failures) != 7 {
		t.Errorf("失败数错误: 期望 7, 得到 %d", len(result.Failures))
	}
	if result.Attempted != 37 || progress.Load() != 37 {
		t.Errorf("尝试数错误: %d, 进度回调: %d", result.Attempted, progress.Load())
	}
	for _, f := range result.Failures {
		if f.Kind != "element_timeout" {
			t.Errorf("失败类型错误: %+v", f)
		}
	}
	if peak.Load() > 5 {
		t.Errorf("并发数超过上限: %d", peak.Load())
	}
	if got := browser.created.Load(); got != 5 {
		t.Errorf("每个worker应只创建一个标签页, 实际创建 %d", got)
	}
	if pool.CurrentSize() != 0 {
		t.Errorf("结束后标签页应全部释放: %d", pool.CurrentSize())
	}
}

func TestScheduler_PanicIsolated(t *testing.T) {
	x := funcExtractor(func(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error) {
		if target.ExternalID == "2" {
			panic("boom")
		}
		return recordFor(target), nil
	})

	pool := NewPagePool(&fakeBrowser{}, 2, nil)
	defer pool.Close()

	result := NewScheduler(pool, x, 2, 0).Run(context.Background(), models.NewTargets(numberedIDs(4), false))
	if len(result.Records) != 3 || len(result.Failures) != 1 {
		t.Fatalf("panic 应只影响单个作品: records=%d failures=%d", len(result.Records), len(result.Failures))
	}
	if result.Failures[0].Kind != "panic" || result.Failures[0].ExternalID != "2" {
		t.Errorf("失败信息错误: %+v", result.Failures[0])
	}
}

// 排名来自采集顺序,与完成顺序无关
func TestScheduler_RankFollowsCollectionOrder(t *testing.T) {
	ids := []string{"500", "400", "300", "200", "100"}
	targets := models.NewTargets(ids, true)

	var (
		mu        sync.Mutex
		completed []string
	)
	x := funcExtractor(func(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error) {
		// 排名越靠前完成得越晚
		time.Sleep(time.Duration(10-target.Rank) * 5 * time.Millisecond)
		mu.Lock()
		completed = append(completed, target.ExternalID)
		mu.Unlock()
		return recordFor(target), nil
	})

	pool := NewPagePool(&fakeBrowser{}, 5, nil)
	defer pool.Close()
	result := NewScheduler(pool, x, 5, 0).Run(context.Background(), targets)

	if len(result.Records) != 5 {
		t.Fatalf("记录数错误: %d", len(result.Records))
	}
	if completed[0] == "500" {
		t.Fatalf("测试前提不成立: 第一名不应最先完成 %v", completed)
	}

	wantRank := map[int64]int{500: 1, 400: 2, 300: 3, 200: 4, 100: 5}
	for _, rec := range result.Records {
		if rec.Item.Rank == nil || *rec.Item.Rank != wantRank[rec.Item.ExternalID] {
			t.Errorf("作品 %d 排名错误: %v", rec.Item.ExternalID, rec.Item.Rank)
		}
	}
}

func TestScheduler_NoPages(t *testing.T) {
	x := funcExtractor(func(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error) {
		return recordFor(target), nil
	})

	pool := NewPagePool(&alwaysFailBrowser{}, 3, nil)
	defer pool.Close()

	result := NewScheduler(pool, x, 3, 0).Run(context.Background(), models.NewTargets(numberedIDs(4), false))
	if len(result.Records) != 0 || len(result.Failures) != 4 {
		t.Fatalf("无标签页时所有作品应失败: records=%d failures=%d", len(result.Records), len(result.Failures))
	}
	for _, f := range result.Failures {
		if f.Kind != "page_unavailable" {
			t.Errorf("失败类型错误: %+v", f)
		}
	}
}

type alwaysFailBrowser struct{}

func (alwaysFailBrowser) NewPage(ctx context.Context) (Page, error) {
	return nil, errors.New("browser crashed")
}

func (alwaysFailBrowser) Close() error { return nil }

func TestScheduler_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	x := funcExtractor(func(ctx context.Context, page Page, target models.Target) (*models.CrawlRecord, error) {
		if calls.Add(1) == 1 {
			cancel()
		}
		return recordFor(target), nil
	})

	pool := NewPagePool(&fakeBrowser{}, 1, nil)
	defer pool.Close()

	result := NewScheduler(pool, x, 1, 0).Run(ctx, models.NewTargets(numberedIDs(10), false))
	if result.Attempted != 0 {
		t.Errorf("取消后进行中的结果应被丢弃: %d", result.Attempted)
	}
	if calls.Load() != 1 {
		t.Errorf("取消后不应继续抽取: %d", calls.Load())
	}
}

func TestScheduler_Empty(t *testing.T) {
	pool := NewPagePool(&fakeBrowser{}, 5, nil)
	result := NewScheduler(pool, nil, 0, 0).Run(context.Background(), nil)
	if result.Attempted != 0 || len(result.Records) != 0 {
		t.Errorf("空目标应返回空结果: %+v", result)
	}
}
