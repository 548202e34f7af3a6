package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

// Stats 数据库统计
type Stats struct {
	Items     int64 `json:"items"`
	Upcoming  int64 `json:"upcoming"`
	Expiring  int64 `json:"expiring"`
	Windows   int64 `json:"windows"`
	Platforms int64 `json:"platforms"`
}

// Stats 返回当前数据量统计
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, rebind(s.dialect, `SELECT
		(SELECT COUNT(*) FROM items),
		(SELECT COUNT(*) FROM items WHERE status = ?),
		(SELECT COUNT(*) FROM items WHERE status = ?),
		(SELECT COUNT(*) FROM windows),
		(SELECT COUNT(*) FROM platforms)`),
		string(models.StatusUpcoming), string(models.StatusExpiring),
	).Scan(&st.Items, &st.Upcoming, &st.Expiring, &st.Windows, &st.Platforms)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return st, nil
}

// ItemFilter 作品查询条件
type ItemFilter struct {
	Status models.LifecycleStatus // 为空时不过滤
	Limit  int                    // 0 表示不限
}

// ListItems 查询作品,有排名的在前
func (s *Store) ListItems(ctx context.Context, f ItemFilter) ([]models.ContentItem, error) {
	query := `SELECT external_id, title, genre, synopsis, thumbnail_url,
		backdrop_url, running_time, rank, status
		FROM items`
	var args []any
	if f.Status != models.StatusNone {
		query += " WHERE status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY CASE WHEN rank IS NULL THEN 1 ELSE 0 END, rank, external_id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, rebind(s.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var (
			it       models.ContentItem
			backdrop sql.NullString
			running  sql.NullInt64
			rank     sql.NullInt64
			status   sql.NullString
		)
		if err := rows.Scan(&it.ExternalID, &it.Title, &it.Genre, &it.Synopsis, &it.ThumbnailURL,
			&backdrop, &running, &rank, &status); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		if backdrop.Valid {
			it.BackdropURL = &backdrop.String
		}
		it.RunningTime = intPtr(running)
		it.Rank = intPtr(rank)
		it.Status = models.LifecycleStatus(status.String)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}
	return items, nil
}

// ListWindows 查询作品的全部窗口,按平台目录顺序
func (s *Store) ListWindows(ctx context.Context, externalID int64) ([]models.AvailabilityWindow, error) {
	rows, err := s.db.QueryContext(ctx, rebind(s.dialect, `SELECT p.name, p.price, p.logo_url,
		w.url, w.release_date, w.expire_date
		FROM windows w
		JOIN items i ON i.id = w.item_id
		JOIN platforms p ON p.id = w.platform_id
		WHERE i.external_id = ?
		ORDER BY p.id`), externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	defer rows.Close()

	var windows []models.AvailabilityWindow
	for rows.Next() {
		var (
			w               models.AvailabilityWindow
			release, expire sql.NullString
		)
		if err := rows.Scan(&w.Platform.Name, &w.Platform.Price, &w.Platform.LogoURL,
			&w.URL, &release, &expire); err != nil {
			return nil, fmt.Errorf("failed to scan window row: %w", err)
		}
		if p, ok := models.ClassifyPlatform(w.Platform.Name); ok {
			w.Platform.Key = p.Key
		}
		if w.ReleaseDate, err = nullDate(release); err != nil {
			return nil, err
		}
		if w.ExpireDate, err = nullDate(expire); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating window rows: %w", err)
	}
	return windows, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := models.ParseDate(v.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", v.String, err)
	}
	return t, nil
}
