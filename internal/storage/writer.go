package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

// Writer 事务内的写操作
type Writer interface {
	// UpsertItems 按 external_id 批量插入或覆盖作品,返回 external_id 到代理键的映射
	UpsertItems(ctx context.Context, items []models.ContentItem) (map[int64]int64, error)
	// PlatformKeys 返回平台名称到代理键的映射,未知名称不出现在结果中
	PlatformKeys(ctx context.Context, names []string) (map[string]int64, error)
	// UpsertWindows 按 (item_id, platform_id) 批量插入或覆盖窗口
	UpsertWindows(ctx context.Context, rows []WindowRow) (int64, error)
	// ClearStaleStatus 清除 before 之前未被刷新的生命周期标签
	ClearStaleStatus(ctx context.Context, status models.LifecycleStatus, before time.Time) (int64, error)
	// DeleteStaleWindows 删除 before 之前未被刷新且带下线日期的窗口
	DeleteStaleWindows(ctx context.Context, before time.Time) (int64, error)
	// DeleteOrphanItems 删除没有窗口且没有标签的作品
	DeleteOrphanItems(ctx context.Context) (int64, error)
}

// WindowRow 已解析代理键的窗口
type WindowRow struct {
	ItemKey     int64
	PlatformKey int64
	URL         string
	ReleaseDate *time.Time
	ExpireDate  *time.Time
}

type txWriter struct {
	tx        *sql.Tx
	dialect   Dialect
	batchSize int
	stamp     int64 // 本事务写入的 updated_at
}

func (w *txWriter) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return w.tx.ExecContext(ctx, rebind(w.dialect, query), args...)
}

func (w *txWriter) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return w.tx.QueryContext(ctx, rebind(w.dialect, query), args...)
}

const upsertItemsHead = `INSERT INTO items
	(external_id, title, genre, synopsis, thumbnail_url, backdrop_url, running_time, rank, status, updated_at)
	VALUES `

const upsertItemsTail = `
	ON CONFLICT (external_id) DO UPDATE SET
		title = excluded.title,
		genre = excluded.genre,
		synopsis = excluded.synopsis,
		thumbnail_url = excluded.thumbnail_url,
		backdrop_url = excluded.backdrop_url,
		running_time = excluded.running_time,
		rank = excluded.rank,
		status = excluded.status,
		updated_at = excluded.updated_at`

func (w *txWriter) UpsertItems(ctx context.Context, items []models.ContentItem) (map[int64]int64, error) {
	keys := make(map[int64]int64, len(items))
	if len(items) == 0 {
		return keys, nil
	}

	for _, chunk := range chunks(items, w.batchSize) {
		var sb strings.Builder
		sb.WriteString(upsertItemsHead)
		args := make([]any, 0, len(chunk)*10)
		for i, it := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(" + placeholders(10) + ")")
			args = append(args,
				it.ExternalID, it.Title, it.Genre, it.Synopsis, it.ThumbnailURL,
				it.BackdropURL, it.RunningTime, it.Rank, nullableStatus(it.Status), w.stamp)
		}
		sb.WriteString(upsertItemsTail)

		if _, err := w.exec(ctx, sb.String(), args...); err != nil {
			return nil, writeError("upsert items", err)
		}
	}

	externalIDs := make([]int64, 0, len(items))
	for _, it := range items {
		externalIDs = append(externalIDs, it.ExternalID)
	}
	for _, chunk := range chunks(externalIDs, w.batchSize) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := w.query(ctx,
			"SELECT external_id, id FROM items WHERE external_id IN ("+placeholders(len(chunk))+")", args...)
		if err != nil {
			return nil, writeError("map item keys", err)
		}
		err = scanKeys(rows, func(ext, id int64) { keys[ext] = id })
		if err != nil {
			return nil, writeError("map item keys", err)
		}
	}
	return keys, nil
}

func scanKeys(rows *sql.Rows, put func(ext, id int64)) error {
	defer rows.Close()
	for rows.Next() {
		var ext, id int64
		if err := rows.Scan(&ext, &id); err != nil {
			return err
		}
		put(ext, id)
	}
	return rows.Err()
}

func (w *txWriter) PlatformKeys(ctx context.Context, names []string) (map[string]int64, error) {
	keys := make(map[string]int64, len(names))
	if len(names) == 0 {
		return keys, nil
	}

	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := w.query(ctx,
		"SELECT name, id FROM platforms WHERE name IN ("+placeholders(len(names))+")", args...)
	if err != nil {
		return nil, writeError("map platform keys", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			id   int64
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, writeError("map platform keys", err)
		}
		keys[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, writeError("map platform keys", err)
	}
	return keys, nil
}

const upsertWindowsHead = `INSERT INTO windows
	(item_id, platform_id, url, release_date, expire_date, updated_at)
	VALUES `

const upsertWindowsTail = `
	ON CONFLICT (item_id, platform_id) DO UPDATE SET
		url = excluded.url,
		release_date = excluded.release_date,
		expire_date = excluded.expire_date,
		updated_at = excluded.updated_at`

func (w *txWriter) UpsertWindows(ctx context.Context, rows []WindowRow) (int64, error) {
	var written int64
	for _, chunk := range chunks(rows, w.batchSize) {
		var sb strings.Builder
		sb.WriteString(upsertWindowsHead)
		args := make([]any, 0, len(chunk)*6)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(" + placeholders(6) + ")")
			args = append(args,
				r.ItemKey, r.PlatformKey, r.URL,
				models.FormatDate(r.ReleaseDate), models.FormatDate(r.ExpireDate), w.stamp)
		}
		sb.WriteString(upsertWindowsTail)

		if _, err := w.exec(ctx, sb.String(), args...); err != nil {
			return written, writeError("upsert windows", err)
		}
		written += int64(len(chunk))
	}
	return written, nil
}

func (w *txWriter) ClearStaleStatus(ctx context.Context, status models.LifecycleStatus, before time.Time) (int64, error) {
	if status == models.StatusNone {
		return 0, fmt.Errorf("clear stale status: 标签不能为空")
	}
	res, err := w.exec(ctx,
		"UPDATE items SET status = NULL WHERE status = ? AND updated_at < ?",
		string(status), before.UnixMilli())
	if err != nil {
		return 0, writeError("clear stale status", err)
	}
	return rowsAffected(res), nil
}

func (w *txWriter) DeleteStaleWindows(ctx context.Context, before time.Time) (int64, error) {
	res, err := w.exec(ctx,
		"DELETE FROM windows WHERE expire_date IS NOT NULL AND updated_at < ?",
		before.UnixMilli())
	if err != nil {
		return 0, writeError("delete stale windows", err)
	}
	return rowsAffected(res), nil
}

func (w *txWriter) DeleteOrphanItems(ctx context.Context) (int64, error) {
	res, err := w.exec(ctx, `DELETE FROM items
		WHERE status IS NULL
		AND NOT EXISTS (SELECT 1 FROM windows WHERE windows.item_id = items.id)`)
	if err != nil {
		return 0, writeError("delete orphan items", err)
	}
	return rowsAffected(res), nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func nullableStatus(s models.LifecycleStatus) any {
	if s == models.StatusNone {
		return nil
	}
	return string(s)
}
