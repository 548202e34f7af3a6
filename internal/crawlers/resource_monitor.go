package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 根据可用内存与CPU估算可同时打开的标签页数
type ResourceMonitor struct {
	config ResourceMonitorConfig

	totalMemory uint64

	mu        sync.RWMutex
	available int64   // 最近一次采样的系统可用内存(字节)
	cpuUsage  float64 // 最近一次采样的CPU使用率(%)

	cancelFunc context.CancelFunc
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 低于此可用内存时不再创建标签页(字节)
	CPULoadThreshold    int   // CPU负载阈值(%),>=200 表示不检查
	MaxPagesLimit       int   // 绝对最大标签页数
	PageMemoryUsage     int64 // 单个标签页平均内存消耗(字节)
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 1024 * 1024 * 1024,
		SafetyThreshold:     500 * 1024 * 1024,
		CPULoadThreshold:    200,
		MaxPagesLimit:       16,
		PageMemoryUsage:     100 * 1024 * 1024,
	}
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64 `json:"total_memory"`
	AvailableMemory int64  `json:"available_memory"`
	MemoryPressure  string `json:"memory_pressure"`
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.PageMemoryUsage <= 0 {
		config.PageMemoryUsage = 100 * 1024 * 1024
	}
	if config.MaxPagesLimit <= 0 {
		config.MaxPagesLimit = 16
	}

	rm := &ResourceMonitor{config: config}

	vmStat, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,使用默认值")
		rm.totalMemory = 4 * 1024 * 1024 * 1024
		rm.available = int64(rm.totalMemory)
	} else {
		rm.totalMemory = vmStat.Total
		rm.available = int64(vmStat.Available)
	}
	log.Debug().Msgf("系统总内存: %.2f GB", float64(rm.totalMemory)/(1024*1024*1024))

	return rm
}

// StartMonitoring 启动后台采样,重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancelFunc != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	go rm.monitoringLoop(ctx, interval)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.sample()
		}
	}
}

func (rm *ResourceMonitor) sample() {
	var available int64 = -1
	if vmStat, err := mem.VirtualMemory(); err == nil {
		available = int64(vmStat.Available)
	}

	usage := 0.0
	if rm.config.CPULoadThreshold < 200 {
		if percentages, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percentages) > 0 {
			usage = percentages[0]
		}
	}

	rm.mu.Lock()
	if available >= 0 {
		rm.available = available
	}
	rm.cpuUsage = usage
	rm.mu.Unlock()
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.cancelFunc = nil
	}
}

func (rm *ResourceMonitor) usableMemory() int64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.available - rm.config.SafetyReserveMemory
}

// CalculateMaxPages 当前资源允许的最大标签页数,至少为1
func (rm *ResourceMonitor) CalculateMaxPages() int {
	usable := rm.usableMemory()

	byMemory := 1
	if usable > rm.config.SafetyThreshold {
		byMemory = int((usable - rm.config.SafetyThreshold) / rm.config.PageMemoryUsage)
	}

	result := min(byMemory, runtime.NumCPU()*2, rm.config.MaxPagesLimit)
	return max(result, 1)
}

// CheckResourceAvailability 检查当前资源是否允许创建新标签页
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	usable := rm.usableMemory()
	if usable < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(当前%dMB)", usable/(1024*1024))
	}

	if rm.config.CPULoadThreshold < 200 {
		rm.mu.RLock()
		usage := rm.cpuUsage
		rm.mu.RUnlock()
		if usage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
		}
	}
	return true, ""
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	usable := rm.usableMemory()

	var pressure string
	switch mb := usable / (1024 * 1024); {
	case mb < 200:
		pressure = "emergency"
	case mb < 300:
		pressure = "critical"
	case mb < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AvailableMemory: usable,
		MemoryPressure:  pressure,
	}
}
