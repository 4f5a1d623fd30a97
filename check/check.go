package check

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twj0/ip-address-purity-checker/config"
	proxies "github.com/twj0/ip-address-purity-checker/proxy"
)

// CheckAll 分批并发检测所有候选IP的纯净度。
// 批大小与批间延迟由配置控制；结果按输入下标写回，顺序稳定。
// 收到强制关闭信号时立即停止派发新批次，已取得的结果照常返回。
func CheckAll(ctx context.Context, client *Client, candidates []proxies.IPCandidate) []Report {
	Progress.Store(0)
	TotalCount.Store(int32(len(candidates)))
	ForceClose.Store(false)

	batchSize := config.GlobalConfig.IPBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	delay := time.Duration(config.GlobalConfig.IPBatchDelay) * time.Second

	slog.Info(fmt.Sprintf("开始检测IP纯净度，共 %d 个候选", len(candidates)))
	start := time.Now()

	reports := make([]Report, len(candidates))

	for begin := 0; begin < len(candidates); begin += batchSize {
		if ctx.Err() != nil || ForceClose.Load() {
			slog.Warn("收到中断信号，提前结束IP检测")
			break
		}
		end := min(begin+batchSize, len(candidates))

		var wg sync.WaitGroup
		for i := begin; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				cand := candidates[idx]
				reports[idx] = Report{
					Candidate: cand,
					Result:    client.Check(ctx, cand.IP),
				}
				Progress.Add(1)
			}(i)
		}
		wg.Wait()

		if end < len(candidates) && delay > 0 {
			select {
			case <-ctx.Done():
				return reports
			case <-time.After(delay):
			}
		}
	}

	slog.Info(fmt.Sprintf("IP检测完成，耗时: %s", time.Since(start).Round(time.Millisecond)))
	return reports
}
