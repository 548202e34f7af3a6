package main

import (
	"fmt"

	"github.com/RecoveryAshes/kinocrawl/internal/core"
	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "检查配置与请求头,不执行抓取",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig.MergeCLIFlags(cliOverrides(cmd))
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置无效: %w", err)
		}

		srcs, err := models.SelectSources(models.DefaultSources(appConfig.Crawl.BaseURL), appConfig.Crawl.Sources)
		if err != nil {
			return err
		}

		hm, err := core.NewHeaderManager(appConfig.Browser.Headers, headers)
		if err != nil {
			return fmt.Errorf("解析请求头失败: %w", err)
		}
		merged, err := hm.GetHeaders()
		if err != nil {
			return fmt.Errorf("请求头验证失败: %w", err)
		}

		fmt.Println("✅ 配置有效")
		fmt.Printf("模式: %s  并发: %d  滚动上限: %d\n",
			appConfig.Crawl.Mode, appConfig.Crawl.Concurrency, appConfig.Crawl.ScrollLimit)
		fmt.Printf("存储: %s\n", appConfig.Storage.Driver)
		for _, s := range srcs {
			fmt.Printf("来源: %-10s %s\n", s.Name, s.URL)
		}
		fmt.Println("请求头:")
		fmt.Println(utils.NewHeaderRedactor().RedactToString(merged))
		return nil
	},
}

func init() {
	addCrawlFlags(validateCmd)
	addStorageFlags(validateCmd)
	validateCmd.Flags().StringSliceVar(&sources, "sources", nil, "启用的来源 (explore,upcoming,expiring,ranking)")
	rootCmd.AddCommand(validateCmd)
}
