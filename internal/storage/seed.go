package storage

import (
	"context"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/rs/zerolog/log"
)

// SeedPlatforms 写入平台目录,已存在的名称保持不变
// 返回新插入的行数
func (s *Store) SeedPlatforms(ctx context.Context, platforms []models.Platform) (int64, error) {
	var inserted int64
	err := s.WithTx(ctx, func(w Writer) error {
		tw := w.(*txWriter)
		for _, p := range platforms {
			res, err := tw.exec(ctx,
				"INSERT INTO platforms (name, price, logo_url) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING",
				p.Name, p.Price, p.LogoURL)
			if err != nil {
				return writeError("seed platforms", err)
			}
			inserted += rowsAffected(res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Int64("inserted", inserted).Int("catalog", len(platforms)).Msg("平台目录已写入")
	return inserted, nil
}
