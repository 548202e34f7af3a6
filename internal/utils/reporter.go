package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/andybalholm/brotli"
	"github.com/schollz/progressbar/v3"
)

// LastPassFile 最近一次抓取报告的文件名
const LastPassFile = "last_pass.json"

// Reporter 报告生成器
type Reporter struct {
	outputDir string
	compress  bool
}

// NewReporter 创建报告生成器
// compress 为 true 时额外写出 brotli 压缩的抓取记录
func NewReporter(outputDir string, compress bool) *Reporter {
	return &Reporter{
		outputDir: outputDir,
		compress:  compress,
	}
}

// ReportPaths 写出的文件
type ReportPaths struct {
	Report  string
	Records string // 未压缩输出时为空
}

// GenerateReport 写出抓取报告
func (r *Reporter) GenerateReport(report *models.PassReport, records []*models.CrawlRecord) (ReportPaths, error) {
	var paths ReportPaths
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return paths, fmt.Errorf("创建报告目录失败: %w", err)
	}

	stamp := report.StartedAt.UTC().Format("20060102T150405Z")
	paths.Report = filepath.Join(r.outputDir, fmt.Sprintf("pass_%s.json", stamp))

	data, err := report.ToJSON()
	if err != nil {
		return paths, fmt.Errorf("序列化报告失败: %w", err)
	}
	for _, p := range []string{paths.Report, filepath.Join(r.outputDir, LastPassFile)} {
		if err := os.WriteFile(p, data, 0644); err != nil {
			return paths, fmt.Errorf("写入报告文件失败: %w", err)
		}
	}

	if r.compress && len(records) > 0 {
		paths.Records = filepath.Join(r.outputDir, fmt.Sprintf("records_%s.json.br", stamp))
		if err := writeBrotliJSON(paths.Records, records); err != nil {
			return paths, err
		}
	}

	Infof("报告已生成: %s", paths.Report)
	return paths, nil
}

// LoadLastReport 读取最近一次抓取报告
func (r *Reporter) LoadLastReport() (*models.PassReport, error) {
	data, err := os.ReadFile(filepath.Join(r.outputDir, LastPassFile))
	if err != nil {
		return nil, err
	}
	var report models.PassReport
	if err := report.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析报告失败: %w", err)
	}
	return &report, nil
}

func writeBrotliJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建记录文件失败: %w", err)
	}
	defer f.Close()

	bw := brotli.NewWriterLevel(f, brotli.DefaultCompression)
	if err := json.NewEncoder(bw).Encode(v); err != nil {
		bw.Close()
		return fmt.Errorf("写入记录失败: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("压缩记录失败: %w", err)
	}
	return f.Close()
}

// ReadRecords 读取 brotli 压缩的抓取记录
func ReadRecords(path string) ([]*models.CrawlRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(brotli.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("解压记录失败: %w", err)
	}
	var records []*models.CrawlRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("解析记录失败: %w", err)
	}
	return records, nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
