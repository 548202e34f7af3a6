package core

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

const testConfigYAML = `
crawl:
  mode: static
  scroll_limit: 20
  sources: [upcoming, ranking]
browser:
  headers:
    Referer: https://m.kinolights.com/
storage:
  driver: sqlite
  data_dir: /tmp/kino
output:
  compress: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Crawl.Mode != models.ModeDynamic || cfg.Crawl.Concurrency != 5 {
		t.Errorf("默认抓取配置错误: %+v", cfg.Crawl)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.RetryAttempts != 3 {
		t.Errorf("默认存储配置错误: %+v", cfg.Storage)
	}
	if cfg.Server.Addr != ":8080" || cfg.Logging.Level != "info" {
		t.Errorf("默认配置错误: %+v %+v", cfg.Server, cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("默认配置应通过验证: %v", err)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	t.Setenv("KINOCRAWL_CRAWL_CONCURRENCY", "3")
	t.Setenv("KINOCRAWL_STORAGE_DATA_DIR", "/var/lib/kino")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"配置文件覆盖模式", cfg.Crawl.Mode, models.ModeStatic},
		{"配置文件覆盖滚动次数", cfg.Crawl.ScrollLimit, 20},
		{"环境变量覆盖并发数", cfg.Crawl.Concurrency, 3},
		{"环境变量优先于配置文件", cfg.Storage.DataDir, "/var/lib/kino"},
		{"来源列表", len(cfg.Crawl.Sources), 2},
		{"压缩输出", cfg.Output.Compress, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("得到 %v, 期望 %v", tt.got, tt.want)
			}
		})
	}

	if cfg.Browser.Headers["referer"] == "" && cfg.Browser.Headers["Referer"] == "" {
		t.Errorf("配置头部缺失: %v", cfg.Browser.Headers)
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := writeConfig(t, "crawl: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Error("格式错误的配置文件应返回错误")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"未知来源", func(c *Config) { c.Crawl.Sources = []string{"weekly"} }},
		{"并发数为0", func(c *Config) { c.Crawl.Concurrency = 0 }},
		{"未知数据库", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"视口为负", func(c *Config) { c.Browser.ViewportWidth = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			cfg, err := LoadConfig("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("期望验证失败")
			}
		})
	}
}

func TestMergeCLIFlags(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}

	headless := false
	cfg.MergeCLIFlags(CLIOverrides{
		Mode:        "static",
		Concurrency: 2,
		Sources:     []string{"ranking"},
		Headless:    &headless,
		DSN:         "postgres://localhost/kino",
		Driver:      "postgres",
	})

	if cfg.Crawl.Mode != models.ModeStatic || cfg.Crawl.Concurrency != 2 {
		t.Errorf("抓取参数未覆盖: %+v", cfg.Crawl)
	}
	if cfg.Browser.Headless {
		t.Error("headless 未覆盖")
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://localhost/kino" {
		t.Errorf("存储参数未覆盖: %+v", cfg.Storage)
	}
	if cfg.Crawl.ScrollLimit != 100 {
		t.Errorf("未指定的参数不应改变: %d", cfg.Crawl.ScrollLimit)
	}
}

func TestConfig_BrowserOptions(t *testing.T) {
	cfg := &Config{Crawl: models.DefaultCrawlConfig()}
	cfg.Browser.Headless = true
	cfg.Browser.ViewportWidth = 400

	headers := http.Header{}
	headers.Set("User-Agent", "kino-test")
	headers.Set("Referer", "https://m.kinolights.com/")
	opts := cfg.BrowserOptions(headers)

	if opts.UserAgent != "kino-test" {
		t.Errorf("请求头中的UA应覆盖默认值: %s", opts.UserAgent)
	}
	if opts.Headers.Get("User-Agent") != "" || opts.Headers.Get("Referer") == "" {
		t.Errorf("附加请求头错误: %v", opts.Headers)
	}
	if opts.ViewportWidth != 400 || opts.ViewportHeight == 0 {
		t.Errorf("视口错误: %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}
	if headers.Get("User-Agent") == "" {
		t.Error("不应修改传入的请求头")
	}
	if opts.ActionTimeout != cfg.Crawl.ElementTimeout() || opts.ActionTimeout <= 0 {
		t.Errorf("元素操作应受元素超时约束: %v", opts.ActionTimeout)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
