package main

import (
	"context"
	"fmt"
	"os"

	"github.com/RecoveryAshes/kinocrawl/internal/core"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 全局参数
var (
	configFile string
	verbose    bool
	logLevel   string
	headers    []string // -H "Name: Value"

	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "kinocrawl",
	Short: "流媒体上映信息抓取工具",
	Long: `kinocrawl - 抓取 Kinolights 上各流媒体平台的作品与可观看窗口

每次抓取依次处理四个列表来源:
  • explore   探索页
  • upcoming  即将上线 (标记 UPCOMING)
  • expiring  即将下线 (标记 EXPIRING)
  • ranking   排行榜前100 (记录排名)

示例:
  # 完整抓取并写入默认的 sqlite 数据库
  kinocrawl run

  # 只抓取排行榜,使用 postgres
  kinocrawl run --sources ranking --driver postgres --dsn postgres://localhost/kino

  # 重新抓取指定作品
  kinocrawl extract --ids 1001,1002

  # 启动状态接口,每天凌晨3点抓取
  kinocrawl serve --schedule "0 3 * * *"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}
		if verbose {
			logConfig.Level = "debug"
		}
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = config
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kinocrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "附加请求头,格式: 'Name: Value',可多次指定")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
