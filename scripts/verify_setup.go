package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  kinocrawl 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// dynamic 模式需要本机 Chromium
	if bin, found := launcher.LookPath(); found {
		fmt.Printf("✅ 浏览器: %s\n", bin)
	} else {
		fmt.Println("⚠️  未找到 Chromium - dynamic 模式首次运行时会自动下载")
		fmt.Println("   也可以在配置中指定 browser.bin")
	}

	fmt.Println()
	fmt.Println("检查可写目录...")
	for _, dir := range []string{"data", "logs", "output"} {
		if err := checkWritable(dir); err != nil {
			fmt.Printf("❌ %s/ 不可写: %v\n", dir, err)
			allOK = false
		} else {
			fmt.Printf("✅ %s/\n", dir)
		}
	}

	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/kinocrawl",
		"internal/core",
		"internal/crawlers",
		"internal/models",
		"internal/server",
		"internal/storage/migrations",
		"internal/utils",
		"configs",
	}
	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'make build' 构建项目")
		fmt.Println("  2. 运行 './kinocrawl migrate' 初始化数据库")
		fmt.Println("  3. 运行 './kinocrawl run' 执行一次抓取")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// checkWritable 创建目录并写入探测文件
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	marker := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(marker)
}
