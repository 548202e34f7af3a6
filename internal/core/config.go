package core

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/kinocrawl/internal/crawlers"
	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 KINOCRAWL_STORAGE_DSN
const EnvPrefix = "KINOCRAWL"

// Config 应用程序配置
type Config struct {
	Crawl    models.CrawlConfig `mapstructure:"crawl"`
	Browser  BrowserConfig      `mapstructure:"browser"`
	Storage  storage.Config     `mapstructure:"storage"`
	Logging  LoggingConfig      `mapstructure:"logging"`
	Output   OutputConfig       `mapstructure:"output"`
	Server   ServerConfig       `mapstructure:"server"`
	Resource ResourceConfig     `mapstructure:"resource"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless       bool              `mapstructure:"headless"`
	Bin            string            `mapstructure:"bin"`
	UserAgent      string            `mapstructure:"user_agent"`
	ViewportWidth  int               `mapstructure:"viewport_width"`
	ViewportHeight int               `mapstructure:"viewport_height"`
	Headers        map[string]string `mapstructure:"headers"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	ReportDir string `mapstructure:"report_dir"`
	Compress  bool   `mapstructure:"compress"` // 额外写出 brotli 压缩的记录
}

// ServerConfig serve 命令配置
type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	Schedule string `mapstructure:"schedule"` // cron 表达式,空表示不定时执行
}

// ResourceConfig 资源估算配置,单位 MB
type ResourceConfig struct {
	SafetyReserveMemory int64 `mapstructure:"safety_reserve_memory"`
	SafetyThreshold     int64 `mapstructure:"safety_threshold"`
	PageMemory          int64 `mapstructure:"page_memory"`
}

// LoadConfig 加载配置文件
// 顺序: 默认值 < 配置文件 < .env / 环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".kinocrawl"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	crawl := models.DefaultCrawlConfig()
	v.SetDefault("crawl.mode", string(crawl.Mode))
	v.SetDefault("crawl.base_url", crawl.BaseURL)
	v.SetDefault("crawl.title_url", crawl.TitleURL)
	v.SetDefault("crawl.concurrency", crawl.Concurrency)
	v.SetDefault("crawl.scroll_limit", crawl.ScrollLimit)
	v.SetDefault("crawl.settle_delay_ms", crawl.SettleDelayMs)
	v.SetDefault("crawl.action_delay_ms", crawl.ActionDelayMs)
	v.SetDefault("crawl.element_timeout_ms", crawl.ElementTimeoutMs)
	v.SetDefault("crawl.nav_timeout_ms", crawl.NavTimeoutMs)
	v.SetDefault("crawl.rate_per_second", crawl.RatePerSecond)
	v.SetDefault("crawl.sources", []string{})

	browser := crawlers.DefaultBrowserOptions()
	v.SetDefault("browser.headless", browser.Headless)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.user_agent", browser.UserAgent)
	v.SetDefault("browser.viewport_width", browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", browser.ViewportHeight)
	v.SetDefault("browser.headers", map[string]string{})

	st := storage.DefaultConfig()
	v.SetDefault("storage.driver", st.Driver)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.data_dir", st.DataDir)
	v.SetDefault("storage.batch_size", st.BatchSize)
	v.SetDefault("storage.retry_attempts", st.RetryAttempts)
	v.SetDefault("storage.retry_initial_ms", st.RetryInitialMs)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.report_dir", "output")
	v.SetDefault("output.compress", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.schedule", "")

	v.SetDefault("resource.safety_reserve_memory", 1024)
	v.SetDefault("resource.safety_threshold", 500)
	v.SetDefault("resource.page_memory", 100)
}

// Validate 验证全部配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		return fmt.Errorf("视口尺寸不能为负数")
	}
	if _, err := models.SelectSources(models.DefaultSources(c.Crawl.BaseURL), c.Crawl.Sources); err != nil {
		return err
	}
	return nil
}

// BrowserOptions 转换为页面驱动选项,headers 为合并后的请求头
func (c *Config) BrowserOptions(headers http.Header) crawlers.BrowserOptions {
	opts := crawlers.DefaultBrowserOptions()
	opts.Headless = c.Browser.Headless
	opts.Bin = c.Browser.Bin
	if c.Browser.UserAgent != "" {
		opts.UserAgent = c.Browser.UserAgent
	}
	if c.Browser.ViewportWidth > 0 {
		opts.ViewportWidth = c.Browser.ViewportWidth
	}
	if c.Browser.ViewportHeight > 0 {
		opts.ViewportHeight = c.Browser.ViewportHeight
	}
	opts.NavTimeout = c.Crawl.NavTimeout()
	opts.ActionTimeout = c.Crawl.ElementTimeout()

	merged := headers.Clone()
	if ua := merged.Get("User-Agent"); ua != "" {
		opts.UserAgent = ua
		merged.Del("User-Agent")
	}
	opts.Headers = merged
	return opts
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	const mb = 1024 * 1024
	rc := crawlers.DefaultResourceMonitorConfig()
	if c.Resource.SafetyReserveMemory > 0 {
		rc.SafetyReserveMemory = c.Resource.SafetyReserveMemory * mb
	}
	if c.Resource.SafetyThreshold > 0 {
		rc.SafetyThreshold = c.Resource.SafetyThreshold * mb
	}
	if c.Resource.PageMemory > 0 {
		rc.PageMemoryUsage = c.Resource.PageMemory * mb
	}
	return rc
}

// CLIOverrides 命令行参数,零值表示未指定
type CLIOverrides struct {
	Mode        string
	Concurrency int
	ScrollLimit int
	Sources     []string
	Headless    *bool
	DSN         string
	Driver      string
	LogLevel    string
	ReportDir   string
}

// MergeCLIFlags 合并命令行参数到配置
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	// 命令行参数优先于配置文件
	if o.Mode != "" {
		c.Crawl.Mode = models.CrawlMode(o.Mode)
	}
	if o.Concurrency > 0 {
		c.Crawl.Concurrency = o.Concurrency
	}
	if o.ScrollLimit > 0 {
		c.Crawl.ScrollLimit = o.ScrollLimit
	}
	if len(o.Sources) > 0 {
		c.Crawl.Sources = o.Sources
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
	if o.Driver != "" {
		c.Storage.Driver = o.Driver
	}
	if o.DSN != "" {
		c.Storage.DSN = o.DSN
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.ReportDir != "" {
		c.Output.ReportDir = o.ReportDir
	}
}
