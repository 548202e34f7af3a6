package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultConcurrency 默认详情页并发数
const DefaultConcurrency = 5

// ScheduleResult 一批作品的抽取结果,Records 顺序不固定
type ScheduleResult struct {
	Records   []*models.CrawlRecord
	Failures  []models.FailureInfo
	Attempted int
}

// Scheduler 有界并发的详情抽取调度器
type Scheduler struct {
	pool        *PagePool
	extractor   Extractor
	concurrency int
	limiter     *rate.Limiter

	// OnProgress 每完成一个作品回调一次,可为空
	OnProgress func(done, total int)
}

// NewScheduler 创建调度器
// ratePerSecond 为0时不限速
func NewScheduler(pool *PagePool, extractor Extractor, concurrency int, ratePerSecond float64) *Scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	s := &Scheduler{
		pool:        pool,
		extractor:   extractor,
		concurrency: concurrency,
	}
	if ratePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return s
}

// Run 抽取全部目标,单个失败不影响其他作品
// ctx 取消后未开始的目标被丢弃
func (s *Scheduler) Run(ctx context.Context, targets []models.Target) ScheduleResult {
	var result ScheduleResult
	if len(targets) == 0 {
		return result
	}

	queue := make(chan models.Target, len(targets))
	for _, t := range targets {
		queue <- t
	}
	close(queue)

	workers := min(s.concurrency, len(targets))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	record := func(rec *models.CrawlRecord, target models.Target, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Attempted++
		done++
		if err != nil {
			result.Failures = append(result.Failures, failureInfo(target, err))
		} else {
			result.Records = append(result.Records, rec)
		}
		if s.OnProgress != nil {
			s.OnProgress(done, len(targets))
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID, queue, record)
		}(i + 1)
	}
	wg.Wait()

	// 所有worker都无法获得标签页时剩余目标记为失败
	if ctx.Err() == nil {
		for t := range queue {
			record(nil, t, extractionError(t.ExternalID, ErrPageUnavailable, nil))
		}
	}

	log.Info().
		Int("attempted", result.Attempted).
		Int("succeeded", len(result.Records)).
		Int("failed", len(result.Failures)).
		Msg("详情抽取完成")
	return result
}

func (s *Scheduler) worker(ctx context.Context, workerID int, queue <-chan models.Target, record func(*models.CrawlRecord, models.Target, error)) {
	logger := log.With().Int("worker", workerID).Logger()

	page, err := s.pool.Acquire(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("worker无法获得标签页,退出")
		return
	}
	defer func() { s.pool.Release(page) }()

	for target := range queue {
		if ctx.Err() != nil {
			return
		}

		rec, err := s.runUnit(ctx, page, target)
		if ctx.Err() != nil {
			return
		}
		logFailure(logger, target, err)
		record(rec, target, err)

		next, err := s.pool.Recycle(ctx, page)
		if err != nil {
			logger.Error().Err(err).Msg("标签页不可用,worker退出")
			page = nil
			return
		}
		page = next
	}
}

// runUnit 执行单个作品的抽取,panic 转为失败
func (s *Scheduler) runUnit(ctx context.Context, page Page, target models.Target) (rec *models.CrawlRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = extractionError(target.ExternalID, ErrWorkerPanic, fmt.Errorf("%v", r))
		}
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return s.extractor.Extract(ctx, page, target)
}

func logFailure(logger zerolog.Logger, target models.Target, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrNoAvailability) {
		logger.Info().Str("id", target.ExternalID).Msg("没有可观看平台,跳过")
		return
	}
	logger.Warn().Err(err).Str("id", target.ExternalID).Str("kind", FailureKind(err)).Msg("作品抽取失败")
}

func failureInfo(target models.Target, err error) models.FailureInfo {
	return models.FailureInfo{
		ExternalID: target.ExternalID,
		Kind:       FailureKind(err),
		Message:    err.Error(),
	}
}
