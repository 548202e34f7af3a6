package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/crawlers"
	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/rs/zerolog/log"
)

// ManualSource 按ID抽取时报告中的来源名称
const ManualSource = "manual"

// BrowserFactory 按模式创建页面驱动
type BrowserFactory func(mode models.CrawlMode, opts crawlers.BrowserOptions) (crawlers.Browser, error)

// DefaultBrowserFactory dynamic 启动 Rod,static 使用 Colly
func DefaultBrowserFactory(mode models.CrawlMode, opts crawlers.BrowserOptions) (crawlers.Browser, error) {
	if mode == models.ModeStatic {
		return crawlers.NewStaticBrowser(opts), nil
	}
	b, err := crawlers.LaunchRodBrowser(opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Runner 执行一次完整抓取
type Runner struct {
	cfg        *Config
	reconciler *Reconciler
	headers    http.Header
	newBrowser BrowserFactory
	monitor    *crawlers.ResourceMonitor
	reporter   *utils.Reporter
	progress   bool
	now        func() time.Time
}

// RunnerOption 可选项
type RunnerOption func(*Runner)

// WithBrowserFactory 替换页面驱动工厂
func WithBrowserFactory(f BrowserFactory) RunnerOption {
	return func(r *Runner) { r.newBrowser = f }
}

// WithResourceMonitor 用资源估算检查并发数
func WithResourceMonitor(m *crawlers.ResourceMonitor) RunnerOption {
	return func(r *Runner) { r.monitor = m }
}

// WithReporter 每次抓取结束后写出报告
func WithReporter(rep *utils.Reporter) RunnerOption {
	return func(r *Runner) { r.reporter = rep }
}

// WithProgress 在终端显示详情抽取进度条
func WithProgress(on bool) RunnerOption {
	return func(r *Runner) { r.progress = on }
}

// WithRunnerClock 替换抓取开始时间的来源
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner 创建抓取执行器,headers 为合并后的附加请求头
func NewRunner(cfg *Config, reconciler *Reconciler, headers http.Header, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:        cfg,
		reconciler: reconciler,
		headers:    headers,
		newBrowser: DefaultBrowserFactory,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Sources 按配置筛选后的来源
func (r *Runner) Sources() ([]models.Source, error) {
	return models.SelectSources(models.DefaultSources(r.cfg.Crawl.BaseURL), r.cfg.Crawl.Sources)
}

// pass 一次抓取共享的浏览器资源
type pass struct {
	browser   crawlers.Browser
	pool      *crawlers.PagePool
	collector *crawlers.IdentifierCollector
	extractor *crawlers.DetailExtractor
	records   []*models.CrawlRecord
}

func (r *Runner) open() (*pass, error) {
	browser, err := r.newBrowser(r.cfg.Crawl.Mode, r.cfg.BrowserOptions(r.headers))
	if err != nil {
		return nil, err
	}
	return &pass{
		browser:   browser,
		pool:      crawlers.NewPagePool(browser, r.cfg.Crawl.Concurrency, r.monitor),
		collector: crawlers.NewIdentifierCollector(r.cfg.Crawl),
		extractor: crawlers.NewDetailExtractor(r.cfg.Crawl),
	}, nil
}

func (p *pass) close() {
	if err := p.pool.Close(); err != nil {
		log.Warn().Err(err).Msg("关闭标签页池失败")
	}
	if err := p.browser.Close(); err != nil {
		log.Warn().Err(err).Msg("关闭浏览器失败")
	}
}

// Run 依次处理各来源,最后执行一次清理
// 存储写入失败会中止本次抓取且不执行清理,返回的报告包含已完成的部分
func (r *Runner) Run(ctx context.Context, sources []models.Source) (*models.PassReport, error) {
	passStart := r.now()
	report := models.NewPassReport(r.cfg.Crawl.Mode, passStart)
	logger := log.With().Str("pass", report.ID).Logger()
	logger.Info().Int("sources", len(sources)).Str("mode", report.Mode).Msg("开始抓取")

	p, err := r.open()
	if err != nil {
		return r.finish(report, nil, fmt.Errorf("启动页面驱动失败: %w", err))
	}
	defer p.close()

	var opts CleanupOptions
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return r.finish(report, p.records, err)
		}

		sr, err := r.runSource(ctx, p, src)
		report.Sources = append(report.Sources, sr)
		if err != nil {
			return r.finish(report, p.records, err)
		}

		if cleanupEligible(sr) {
			switch src.Status() {
			case models.StatusUpcoming:
				opts.ClearUpcoming = true
			case models.StatusExpiring:
				opts.ClearExpiring = true
			}
		}
	}

	cleanup, err := r.reconciler.Cleanup(ctx, passStart, opts)
	if err != nil {
		return r.finish(report, p.records, err)
	}
	report.Cleanup = &cleanup
	return r.finish(report, p.records, nil)
}

// RunIDs 只抽取给定ID,不赋予排名与标签,也不执行清理
func (r *Runner) RunIDs(ctx context.Context, ids []string) (*models.PassReport, error) {
	report := models.NewPassReport(r.cfg.Crawl.Mode, r.now())

	p, err := r.open()
	if err != nil {
		return r.finish(report, nil, fmt.Errorf("启动页面驱动失败: %w", err))
	}
	defer p.close()

	start := time.Now()
	sr := models.SourceReport{Name: ManualSource, Outcome: models.OutcomeOK, Collected: len(ids)}
	if len(ids) == 0 {
		sr.Outcome = models.OutcomeEmpty
	}
	err = r.extractAndWrite(ctx, p, &sr, models.NewTargets(ids, false), models.StatusNone)
	sr.Duration = time.Since(start).Seconds()
	report.Sources = append(report.Sources, sr)
	return r.finish(report, p.records, err)
}

// runSource 采集、抽取并写入单个来源
// 只有存储失败或取消才返回错误
func (r *Runner) runSource(ctx context.Context, p *pass, src models.Source) (sr models.SourceReport, err error) {
	start := time.Now()
	sr.Name = src.Name
	defer func() { sr.Duration = time.Since(start).Seconds() }()

	page, err := p.pool.Acquire(ctx)
	if err != nil {
		sr.Outcome = models.OutcomeFailed
		sr.Error = err.Error()
		log.Error().Err(err).Str("source", src.Name).Msg("无法获得标签页")
		return sr, ctx.Err()
	}
	collected := p.collector.Collect(ctx, page, src)
	p.pool.Release(page)

	sr.Outcome = collected.Outcome()
	sr.Collected = len(collected.IDs)
	if collected.Err != nil {
		sr.Error = collected.Err.Error()
		return sr, ctx.Err()
	}

	targets := models.NewTargets(collected.IDs, src.Ranked())
	err = r.extractAndWrite(ctx, p, &sr, targets, src.Status())
	return sr, err
}

func (r *Runner) extractAndWrite(ctx context.Context, p *pass, sr *models.SourceReport, targets []models.Target, status models.LifecycleStatus) error {
	if len(targets) == 0 {
		return nil
	}

	scheduler := crawlers.NewScheduler(p.pool, p.extractor, r.cfg.Crawl.Concurrency, r.cfg.Crawl.RatePerSecond)
	if r.progress {
		bar := utils.NewProgressBar(len(targets), sr.Name)
		scheduler.OnProgress = func(done, _ int) { _ = bar.Set(done) }
		defer bar.Finish()
	}
	result := scheduler.Run(ctx, targets)

	sr.Attempted = result.Attempted
	sr.Succeeded = len(result.Records)
	sr.Failed = len(result.Failures)
	sr.Failures = result.Failures
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, rec := range result.Records {
		rec.Item.Status = status
	}
	p.records = append(p.records, result.Records...)

	written, err := r.reconciler.Reconcile(ctx, result.Records)
	if err != nil {
		sr.Error = err.Error()
		return err
	}
	sr.ItemsWritten = written.Items
	sr.WindowsWritten = written.Windows
	sr.Skipped = written.Skipped
	return nil
}

func (r *Runner) finish(report *models.PassReport, records []*models.CrawlRecord, err error) (*models.PassReport, error) {
	report.FinishedAt = r.now()
	if err != nil {
		report.Error = err.Error()
	}

	items, windows := report.Written()
	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	}
	event.Str("pass", report.ID).
		Int("attempted", report.Attempted()).
		Int("succeeded", report.Succeeded()).
		Int("failed", report.Failed()).
		Int("items_written", items).
		Int("windows_written", windows).
		Int64("deleted", report.Deleted()).
		Float64("duration", report.Duration()).
		Msg("抓取结束")

	if r.reporter != nil {
		if _, rerr := r.reporter.GenerateReport(report, records); rerr != nil {
			log.Warn().Err(rerr).Msg("写出报告失败")
		}
	}
	if errors.Is(err, context.Canceled) {
		return report, fmt.Errorf("抓取已取消: %w", err)
	}
	return report, err
}

// cleanupEligible 列表加载失败,或尝试了抽取但一个都没成功时,不清理该来源的标签与窗口
func cleanupEligible(sr models.SourceReport) bool {
	if sr.Outcome == models.OutcomeFailed {
		return false
	}
	return sr.Attempted == 0 || sr.Succeeded > 0
}
