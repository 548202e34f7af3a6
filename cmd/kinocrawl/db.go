package main

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/kinocrawl/internal/core"
	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/storage"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移并写入平台目录",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStoreFromFlags(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		return migrateAndSeed(ctx, store)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "写入平台目录,已存在的平台保持不变",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStoreFromFlags(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		inserted, err := store.SeedPlatforms(ctx, models.Platforms)
		if err != nil {
			return fmt.Errorf("写入平台目录失败: %w", err)
		}
		fmt.Printf("新增平台: %d / %d\n", inserted, len(models.Platforms))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "显示数据库中的数据量",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStoreFromFlags(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("作品: %d (即将上线 %d, 即将下线 %d)\n", st.Items, st.Upcoming, st.Expiring)
		fmt.Printf("窗口: %d\n", st.Windows)
		fmt.Printf("平台: %d\n", st.Platforms)
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <records.json.br>",
	Short: "把 --compress 写出的记录文件重新写入数据库,不清理",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStoreFromFlags(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := migrateAndSeed(ctx, store); err != nil {
			return err
		}

		reconciler := core.NewReconciler(store, appConfig.Storage.RetryAttempts, appConfig.Storage.RetryInitial())
		res, err := reconciler.ReplayFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("写入作品: %d  写入窗口: %d  跳过: %d\n", res.Items, res.Windows, res.Skipped)
		return nil
	},
}

// openStoreFromFlags 只合并存储相关参数后打开数据库
func openStoreFromFlags(ctx context.Context) (*storage.Store, error) {
	appConfig.MergeCLIFlags(cliStorageOverrides())
	if err := appConfig.Storage.Validate(); err != nil {
		return nil, fmt.Errorf("存储配置无效: %w", err)
	}
	return openStore(ctx)
}

func cliStorageOverrides() core.CLIOverrides {
	return core.CLIOverrides{Driver: driver, DSN: dsn}
}

func openStore(ctx context.Context) (*storage.Store, error) {
	store, err := storage.Open(ctx, appConfig.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return store, nil
}

func migrateAndSeed(ctx context.Context, store *storage.Store) error {
	version, dirty, err := store.Migrate()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("数据库迁移版本 %d 处于 dirty 状态,需要手动修复", version)
	}
	inserted, err := store.SeedPlatforms(ctx, models.Platforms)
	if err != nil {
		return fmt.Errorf("写入平台目录失败: %w", err)
	}
	utils.Debugf("数据库版本 %d, 新增平台 %d", version, inserted)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{migrateCmd, seedCmd, statsCmd, replayCmd} {
		addStorageFlags(c)
		rootCmd.AddCommand(c)
	}
}
