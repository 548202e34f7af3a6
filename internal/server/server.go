package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// PassFunc 执行一次完整抓取
type PassFunc func(ctx context.Context) (*models.PassReport, error)

// Store 状态接口需要的只读查询
type Store interface {
	Stats(ctx context.Context) (storage.Stats, error)
	ListItems(ctx context.Context, f storage.ItemFilter) ([]models.ContentItem, error)
	ListWindows(ctx context.Context, externalID int64) ([]models.AvailabilityWindow, error)
}

// LastReportLoader 进程启动前的最近报告
type LastReportLoader func() (*models.PassReport, error)

// Server 状态接口与定时抓取
// 同一时刻最多只有一次抓取在执行
type Server struct {
	store    Store
	runPass  PassFunc
	loadLast LastReportLoader

	engine *gin.Engine
	http   *http.Server
	cron   *cron.Cron

	// baseCtx 抓取使用的上下文,Shutdown 时取消
	baseCtx context.Context
	cancel  context.CancelFunc

	busy    atomic.Bool
	passes  sync.WaitGroup
	mu      sync.Mutex
	last    *models.PassReport
	lastErr string
}

// New 创建服务,loadLast 可为空
func New(addr string, store Store, runPass PassFunc, loadLast LastReportLoader) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:    store,
		runPass:  runPass,
		loadLast: loadLast,
		cron:     cron.New(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	s.engine = newEngine(s)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回路由,用于测试
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Busy 是否有抓取正在执行
func (s *Server) Busy() bool {
	return s.busy.Load()
}

// Trigger 在后台开始一次抓取,已有抓取在执行时返回 false
func (s *Server) Trigger(reason string) bool {
	if !s.busy.CompareAndSwap(false, true) {
		log.Info().Str("reason", reason).Msg("已有抓取在执行,跳过")
		return false
	}
	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer s.busy.Store(false)
		s.execute(reason)
	}()
	return true
}

func (s *Server) execute(reason string) {
	log.Info().Str("reason", reason).Msg("开始抓取")

	report, err := s.runPass(s.baseCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if report != nil {
		s.last = report
	}
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
		log.Error().Err(err).Str("reason", reason).Msg("抓取失败")
	}
}

// Wait 等待正在执行的抓取结束
func (s *Server) Wait() {
	s.passes.Wait()
}

// LastReport 最近一次抓取报告,进程内没有时读取磁盘
func (s *Server) LastReport() (*models.PassReport, error) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != nil {
		return last, nil
	}
	if s.loadLast == nil {
		return nil, nil
	}
	return s.loadLast()
}

// StartCron 按 cron 表达式定时抓取,schedule 为空时不启动
func (s *Server) StartCron(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Trigger("cron") }); err != nil {
		return fmt.Errorf("无效的定时表达式 %q: %w", schedule, err)
	}
	s.cron.Start()
	log.Info().Str("schedule", schedule).Msg("定时抓取已启动")
	return nil
}

// ListenAndServe 阻塞直到 ctx 取消,然后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("状态接口已启动")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.cancel()
			return fmt.Errorf("HTTP服务失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown 停止定时任务与HTTP服务,取消并等待正在执行的抓取
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("正在关闭服务...")
	<-s.cron.Stop().Done()

	err := s.http.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("等待抓取结束超时: %w", ctx.Err())
	}
	return err
}
