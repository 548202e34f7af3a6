// Package crawlers 提供列表页ID采集与详情页抽取功能
//
// # 概述
//
// crawlers包通过统一的Page能力接口驱动页面,支持动态(go-rod)和静态(Colly)两种模式。
// 上层只依赖Page/Element接口,导航和等待都有超时,元素未命中返回空结果而不是错误。
//
// # 核心组件
//
// ## RodBrowser / StaticBrowser
//
// RodBrowser 启动Chromium并模拟移动端设备,用于需要脚本渲染的页面。
// StaticBrowser 基于Colly,只抓取服务端返回的HTML,点击与滚动为空操作。
//
//	browser, err := LaunchRodBrowser(DefaultBrowserOptions())
//	defer browser.Close()
//
// ## IdentifierCollector (列表页采集)
//
// 打开列表页后反复滚动到底部,直到连续两次高度相同或达到滚动上限。
// ID按IDStrategy列表依次尝试,前一个策略没有结果才使用下一个,结果按出现顺序去重。
//
//	result := collector.Collect(ctx, page, source)
//	if result.Err != nil { ... }
//
// ## DetailExtractor (详情页抽取)
//
// 抽取作品元数据与各平台的可观看窗口。失败统一返回 *ExtractionError,
// 可用 errors.Is 判断 ErrNavigation / ErrElementTimeout / ErrNoAvailability 等类型。
//
// ## PagePool 与 Scheduler
//
// Scheduler 启动固定数量的worker,每个worker从PagePool获得一个标签页并独占到结束,
// 作品之间只做清理。清理失败的标签页按健康策略重试、标记或替换。
// 单个作品的失败或panic只记录,不影响其他作品。
//
//	pool := NewPagePool(browser, 5, monitor)
//	defer pool.Close()
//	result := NewScheduler(pool, extractor, 5, 0).Run(ctx, targets)
//
// ## ResourceMonitor
//
// 通过gopsutil采样系统内存与CPU,在配置的并发数超过资源估算时给出警告。
package crawlers
