package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志文件名,位于 LogConfig.LogDir 下
const (
	MainLogFile  = "kinocrawl.log"
	ErrorLogFile = "kinocrawl_error.log"
)

// Logger 全局日志器,InitLogger 之前丢弃一切输出
var Logger = zerolog.Nop()

// LogConfig 日志配置
type LogConfig struct {
	Level      string // trace | debug | info | warn | error
	LogDir     string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	Console    io.Writer // nil 时为 stdout
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger 初始化全局日志器
// 控制台与主日志接收全部级别,错误日志只接收 error 及以上
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	level := parseLevel(config.Level)
	zerolog.SetGlobalLevel(level)

	console := config.Console
	noColor := true
	if console == nil {
		console = os.Stdout
		noColor = false
	}

	out := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime, NoColor: noColor},
		config.rotatingFile(MainLogFile),
		&FilteredWriter{Writer: config.rotatingFile(ErrorLogFile), MinLevel: zerolog.ErrorLevel},
	)

	Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Debug().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")
	return nil
}

// parseLevel 空或无法识别的级别按 info 处理
func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

func (c LogConfig) rotatingFile(name string) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// FilteredWriter 只写入 MinLevel 及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 没有级别的写入直接丢弃
func (w *FilteredWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel 实现 zerolog.LevelWriter
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.MinLevel || level >= zerolog.NoLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

func Info(msg string)                   { Logger.Info().Msg(msg) }
func Infof(format string, args ...any)  { Logger.Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { Logger.Warn().Msgf(format, args...) }
func Debug(msg string)                  { Logger.Debug().Msg(msg) }
func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }
func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }

// Error 带错误字段的错误日志
func Error(err error, msg string) {
	Logger.Error().Err(err).Msg(msg)
}
