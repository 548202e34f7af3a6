package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/storage"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/eapache/go-resiliency/retrier"
	"github.com/rs/zerolog/log"
)

// ErrUnmappedReference 窗口引用的作品或平台没有代理键
var ErrUnmappedReference = errors.New("无法映射的引用")

// TxRunner 提供事务的存储
type TxRunner interface {
	WithTx(ctx context.Context, fn func(storage.Writer) error) error
}

// ReconcileResult 一批记录的写入统计
type ReconcileResult struct {
	Items   int
	Windows int
	Skipped int // 无法映射而跳过的窗口
}

// CleanupOptions 本次抓取中成功参与的生命周期来源
type CleanupOptions struct {
	ClearUpcoming bool
	ClearExpiring bool
}

// Reconciler 把抽取结果写入存储
type Reconciler struct {
	db    TxRunner
	retry *retrier.Retrier
}

// writeClassifier 只重试存储写入失败
type writeClassifier struct{}

func (writeClassifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case errors.Is(err, storage.ErrWrite):
		return retrier.Retry
	default:
		return retrier.Fail
	}
}

// NewReconciler 创建写入器
// attempts 为总尝试次数,initial 为第一次重试前的等待
func NewReconciler(db TxRunner, attempts int, initial time.Duration) *Reconciler {
	if attempts < 1 {
		attempts = 1
	}
	return &Reconciler{
		db:    db,
		retry: retrier.New(retrier.ExponentialBackoff(attempts-1, initial), writeClassifier{}),
	}
}

func (r *Reconciler) run(ctx context.Context, op string, work func(ctx context.Context) error) error {
	attempt := 0
	return r.retry.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		err := work(ctx)
		if err != nil && errors.Is(err, storage.ErrWrite) {
			log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("写入失败")
		}
		return err
	})
}

// Reconcile 先写作品再写窗口
// 没有窗口的作品也写入以刷新标签,同一批内重复的作品与 (作品, 平台) 以最后一次为准
func (r *Reconciler) Reconcile(ctx context.Context, records []*models.CrawlRecord) (ReconcileResult, error) {
	items, windows := collapse(records)
	if len(items) == 0 {
		return ReconcileResult{}, nil
	}

	var (
		result  ReconcileResult
		skipped []unmapped
	)
	err := r.run(ctx, "reconcile", func(ctx context.Context) error {
		result, skipped = ReconcileResult{}, nil

		var keys map[int64]int64
		err := r.db.WithTx(ctx, func(w storage.Writer) error {
			var err error
			keys, err = w.UpsertItems(ctx, items)
			return err
		})
		if err != nil {
			return err
		}
		result.Items = len(items)

		return r.db.WithTx(ctx, func(w storage.Writer) error {
			platformKeys, err := w.PlatformKeys(ctx, platformNames(windows))
			if err != nil {
				return err
			}

			rows := make([]storage.WindowRow, 0, len(windows))
			for _, pw := range windows {
				itemKey, ok := keys[pw.externalID]
				if !ok {
					skipped = append(skipped, unmapped{pw.externalID, "", "item"})
					continue
				}
				platformKey, ok := platformKeys[pw.window.Platform.Name]
				if !ok {
					skipped = append(skipped, unmapped{pw.externalID, pw.window.Platform.Name, "platform"})
					continue
				}
				rows = append(rows, storage.WindowRow{
					ItemKey:     itemKey,
					PlatformKey: platformKey,
					URL:         pw.window.URL,
					ReleaseDate: pw.window.ReleaseDate,
					ExpireDate:  pw.window.ExpireDate,
				})
			}
			if _, err := w.UpsertWindows(ctx, rows); err != nil {
				return err
			}
			result.Windows = len(rows)
			return nil
		})
	})
	if err != nil {
		return result, fmt.Errorf("写入抓取结果失败: %w", err)
	}

	for _, u := range skipped {
		log.Warn().Err(ErrUnmappedReference).
			Int64("id", u.externalID).
			Str("platform", u.platform).
			Str("missing", u.missing).
			Msg("跳过窗口")
	}
	result.Skipped = len(skipped)

	log.Info().
		Int("items", result.Items).
		Int("windows", result.Windows).
		Int("skipped", result.Skipped).
		Msg("抓取结果已写入")
	return result, nil
}

// ReplayFile 把 output.compress 写出的记录文件重新写入存储,不做清理
// 标签与排名按记录原样写入
func (r *Reconciler) ReplayFile(ctx context.Context, path string) (ReconcileResult, error) {
	records, err := utils.ReadRecords(path)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("读取记录文件失败: %w", err)
	}
	log.Info().Str("path", path).Int("records", len(records)).Msg("重放抓取记录")
	return r.Reconcile(ctx, records)
}

// Cleanup 在一个事务内依次清除过期标签、删除过期窗口、删除孤立作品
// 只处理 passStart 之前未被刷新的行
func (r *Reconciler) Cleanup(ctx context.Context, passStart time.Time, opts CleanupOptions) (models.CleanupReport, error) {
	var report models.CleanupReport
	err := r.run(ctx, "cleanup", func(ctx context.Context) error {
		report = models.CleanupReport{}
		return r.db.WithTx(ctx, func(w storage.Writer) error {
			if opts.ClearUpcoming {
				n, err := w.ClearStaleStatus(ctx, models.StatusUpcoming, passStart)
				if err != nil {
					return err
				}
				report.StatusCleared += n
			}
			if opts.ClearExpiring {
				n, err := w.DeleteStaleWindows(ctx, passStart)
				if err != nil {
					return err
				}
				report.WindowsDeleted = n
			}
			n, err := w.DeleteOrphanItems(ctx)
			if err != nil {
				return err
			}
			report.ItemsDeleted = n
			return nil
		})
	})
	if err != nil {
		return report, fmt.Errorf("清理失败: %w", err)
	}

	log.Info().
		Int64("status_cleared", report.StatusCleared).
		Int64("windows_deleted", report.WindowsDeleted).
		Int64("items_deleted", report.ItemsDeleted).
		Msg("清理完成")
	return report, nil
}

type pendingWindow struct {
	externalID int64
	window     models.AvailabilityWindow
}

type windowKey struct {
	externalID int64
	platform   string
}

type unmapped struct {
	externalID int64
	platform   string
	missing    string
}

// collapse 合并重复项,保持首次出现的顺序
func collapse(records []*models.CrawlRecord) ([]models.ContentItem, []pendingWindow) {
	itemIndex := make(map[int64]int)
	var items []models.ContentItem
	windowIndex := make(map[windowKey]int)
	var windows []pendingWindow

	for _, rec := range records {
		if rec == nil {
			continue
		}
		id := rec.Item.ExternalID
		if i, ok := itemIndex[id]; ok {
			items[i] = rec.Item
		} else {
			itemIndex[id] = len(items)
			items = append(items, rec.Item)
		}

		for _, w := range rec.Windows {
			key := windowKey{id, w.Platform.Name}
			pw := pendingWindow{externalID: id, window: w}
			if i, ok := windowIndex[key]; ok {
				windows[i] = pw
				continue
			}
			windowIndex[key] = len(windows)
			windows = append(windows, pw)
		}
	}
	return items, windows
}

func platformNames(windows []pendingWindow) []string {
	seen := make(map[string]bool)
	var names []string
	for _, pw := range windows {
		if !seen[pw.window.Platform.Name] {
			seen[pw.window.Platform.Name] = true
			names = append(names, pw.window.Platform.Name)
		}
	}
	return names
}
