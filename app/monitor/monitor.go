// Package monitor 进程内存水位监控
package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/twj0/ip-address-purity-checker/config"
)

const sampleInterval = 30 * time.Second

// StartMemoryMonitor 周期采样进程RSS，超过配置上限时告警并强制归还内存。
// 未配置mem-limit-mb时只做采样日志，不做干预。
func StartMemoryMonitor() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.Warn(fmt.Sprintf("初始化内存监控失败: %v", err))
		return
	}

	go func() {
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()

		for range ticker.C {
			mem, err := proc.MemoryInfo()
			if err != nil {
				continue
			}

			limitMB := config.GlobalConfig.MemLimitMB
			if limitMB <= 0 {
				slog.Debug("内存采样", "rss", units.BytesSize(float64(mem.RSS)))
				continue
			}

			limit := uint64(limitMB) * 1024 * 1024
			if mem.RSS > limit {
				slog.Warn(fmt.Sprintf("内存占用 %s 超过上限 %s，强制回收",
					units.BytesSize(float64(mem.RSS)), units.BytesSize(float64(limit))))
				debug.FreeOSMemory()
			}
		}
	}()

	slog.Info("内存监控已启动")
}
