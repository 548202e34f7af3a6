package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/core"
	"github.com/RecoveryAshes/kinocrawl/internal/crawlers"
	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/server"
	"github.com/RecoveryAshes/kinocrawl/internal/storage"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
	"github.com/spf13/cobra"
)

// 抓取参数
var (
	mode        string
	concurrency int
	scrollLimit int
	sources     []string
	headless    bool
	driver      string
	dsn         string
	reportDir   string
	noProgress  bool

	idList   string
	idFile   string
	schedule string
	addr     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行一次完整抓取",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := openApp(ctx, cmd, !noProgress)
		if err != nil {
			return err
		}
		defer app.close()

		srcs, err := app.runner.Sources()
		if err != nil {
			return err
		}
		report, err := app.runner.Run(ctx, srcs)
		printReport(report)
		if err != nil {
			return fmt.Errorf("抓取失败: %w", err)
		}
		utils.Info("抓取任务完成")
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "只抽取指定作品,不更新排名与标签,也不清理",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := resolveIDs(idList, idFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := openApp(ctx, cmd, !noProgress)
		if err != nil {
			return err
		}
		defer app.close()

		report, err := app.runner.RunIDs(ctx, ids)
		printReport(report)
		if err != nil {
			return fmt.Errorf("抽取失败: %w", err)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动状态接口,可选定时抓取",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("schedule") {
			appConfig.Server.Schedule = schedule
		}
		if cmd.Flags().Changed("addr") {
			appConfig.Server.Addr = addr
		}

		app, err := openApp(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer app.close()

		runPass := func(ctx context.Context) (*models.PassReport, error) {
			srcs, err := app.runner.Sources()
			if err != nil {
				return nil, err
			}
			return app.runner.Run(ctx, srcs)
		}
		srv := server.New(appConfig.Server.Addr, app.store, runPass, app.reporter.LoadLastReport)
		if err := srv.StartCron(appConfig.Server.Schedule); err != nil {
			return err
		}
		return srv.ListenAndServe(ctx)
	},
}

// app 一次命令执行期间的依赖
type app struct {
	store    *storage.Store
	runner   *core.Runner
	reporter *utils.Reporter
	monitor  *crawlers.ResourceMonitor
}

func (a *app) close() {
	a.monitor.StopMonitoring()
	if err := a.store.Close(); err != nil {
		utils.Warnf("关闭数据库失败: %v", err)
	}
}

// openApp 合并命令行参数,打开数据库并迁移,创建抓取执行器
func openApp(ctx context.Context, cmd *cobra.Command, progress bool) (*app, error) {
	appConfig.MergeCLIFlags(cliOverrides(cmd))
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	headerManager, err := core.NewHeaderManager(appConfig.Browser.Headers, headers)
	if err != nil {
		return nil, fmt.Errorf("解析请求头失败: %w", err)
	}
	merged, err := headerManager.GetHeaders()
	if err != nil {
		return nil, fmt.Errorf("请求头验证失败: %w", err)
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := migrateAndSeed(ctx, store); err != nil {
		store.Close()
		return nil, err
	}

	monitor := crawlers.NewResourceMonitor(appConfig.ResourceMonitorConfig())
	monitor.StartMonitoring(5 * time.Second)

	reporter := utils.NewReporter(appConfig.Output.ReportDir, appConfig.Output.Compress)
	reconciler := core.NewReconciler(store, appConfig.Storage.RetryAttempts, appConfig.Storage.RetryInitial())
	runner := core.NewRunner(appConfig, reconciler, merged,
		core.WithResourceMonitor(monitor),
		core.WithReporter(reporter),
		core.WithProgress(progress),
	)

	return &app{store: store, runner: runner, reporter: reporter, monitor: monitor}, nil
}

func cliOverrides(cmd *cobra.Command) core.CLIOverrides {
	o := core.CLIOverrides{
		Mode:        mode,
		Concurrency: concurrency,
		ScrollLimit: scrollLimit,
		Sources:     sources,
		DSN:         dsn,
		Driver:      driver,
		ReportDir:   reportDir,
	}
	if cmd.Flags().Changed("headless") {
		o.Headless = &headless
	}
	return o
}

func resolveIDs(list, file string) ([]string, error) {
	switch {
	case list != "" && file != "":
		return nil, fmt.Errorf("--ids 与 --file 只能指定一个")
	case file != "":
		return utils.ReadIDsFromFile(file)
	case list != "":
		ids, err := utils.SplitIDs(list)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("没有有效的作品ID")
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("需要 --ids 或 --file")
	}
}

func printReport(report *models.PassReport) {
	if report == nil {
		return
	}
	items, windows := report.Written()
	fmt.Println("\n==================================================")
	fmt.Println("抓取统计")
	fmt.Println("==================================================")
	for _, s := range report.Sources {
		fmt.Printf("%-10s %-7s 采集 %d, 成功 %d, 失败 %d, 跳过 %d\n",
			s.Name, s.Outcome, s.Collected, s.Succeeded, s.Failed, s.Skipped)
	}
	fmt.Printf("尝试: %d  成功: %d  失败: %d\n", report.Attempted(), report.Succeeded(), report.Failed())
	fmt.Printf("写入作品: %d  写入窗口: %d  删除: %d\n", items, windows, report.Deleted())
	if report.Cleanup != nil {
		fmt.Printf("清除标签: %d\n", report.Cleanup.StatusCleared)
	}
	fmt.Printf("总耗时: %.2f秒\n", report.Duration())
	if report.Error != "" {
		fmt.Printf("错误: %s\n", report.Error)
	}
	fmt.Println("==================================================")
}

func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "页面驱动模式 (static|dynamic)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "详情页并发数")
	cmd.Flags().IntVar(&scrollLimit, "scroll-limit", 0, "列表页滚动次数上限")
	cmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	cmd.Flags().StringVarP(&reportDir, "output", "o", "", "报告目录")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")
}

func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&driver, "driver", "", "数据库 (sqlite|postgres)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "数据库连接串,sqlite 为文件路径")
}

func init() {
	addCrawlFlags(runCmd)
	addStorageFlags(runCmd)
	runCmd.Flags().StringSliceVar(&sources, "sources", nil, "启用的来源 (explore,upcoming,expiring,ranking)")

	addCrawlFlags(extractCmd)
	addStorageFlags(extractCmd)
	extractCmd.Flags().StringVar(&idList, "ids", "", "逗号分隔的作品ID")
	extractCmd.Flags().StringVarP(&idFile, "file", "f", "", "每行一个作品ID的文件")

	addCrawlFlags(serveCmd)
	addStorageFlags(serveCmd)
	serveCmd.Flags().StringSliceVar(&sources, "sources", nil, "启用的来源 (explore,upcoming,expiring,ranking)")
	serveCmd.Flags().StringVar(&schedule, "schedule", "", "cron 表达式,如 '0 3 * * *'")
	serveCmd.Flags().StringVar(&addr, "addr", "", "监听地址")

	rootCmd.AddCommand(runCmd, extractCmd, serveCmd)
}
