package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/twj0/ip-address-purity-checker/check"
	"github.com/twj0/ip-address-purity-checker/config"
	proxies "github.com/twj0/ip-address-purity-checker/proxy"
	"github.com/twj0/ip-address-purity-checker/save"
	"github.com/twj0/ip-address-purity-checker/save/method"
)

// 检测流水线的中止条件
var (
	ErrNoSources = errors.New("没有任何订阅源返回有效节点")
	ErrNoIPs     = errors.New("没有提取到任何IP候选")
	ErrNoPureIPs = errors.New("没有检测到任何纯净IP")
)

// KV键名
const (
	lastResultKey  = "last_check_result"
	lastErrorKey   = "last_check_error"
	clashConfigKey = "clash_config"

	lastResultTTL = 7 * 24 * time.Hour
	lastErrorTTL  = 24 * time.Hour
)

// RunStats 一次完整检测的统计结果
type RunStats struct {
	Time          string `json:"time"`
	DurationSec   int64  `json:"durationSec"`
	Subscriptions int    `json:"subscriptions"`
	ActiveSources int    `json:"activeSources"`
	TotalNodes    int    `json:"totalNodes"`
	UniqueIPs     int    `json:"uniqueIPs"`
	PureIPs       int    `json:"pureIPs"`
}

// RunError 带阶段标记的检测失败记录
type RunError struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
	Time  string `json:"time"`
}

// StageError 标记失败发生在流水线的哪一步，HTTP接口据此返回阶段名
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("阶段 %s 失败: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// runPipeline 执行完整的检测流水线：
// 拉订阅 → 解析 → 提取IP → 纯净度检测 → 排序过滤 → 合成配置 → 发布。
// 任何一步失败都不发布，失败记录写入KV供状态接口查询。
func (app *App) runPipeline() (*RunStats, error) {
	start := time.Now()

	// 1. 加载订阅注册表并拉取
	subs, err := proxies.LoadSubscriptions(app.kv)
	if err != nil {
		return nil, app.recordFailure("fetch", err)
	}
	nodes := proxies.FetchAll(app.ctx, subs)

	if err := proxies.SaveSubscriptions(app.kv, subs); err != nil {
		slog.Warn(fmt.Sprintf("保存订阅注册表失败: %v", err))
	}
	app.saveSubStats(subs)

	activeSources := lo.CountBy(subs, func(s *proxies.Subscription) bool {
		return s.Status == proxies.StatusActive && s.NodeCount > 0
	})
	if activeSources == 0 {
		return nil, app.recordFailure("fetch", ErrNoSources)
	}
	slog.Info(fmt.Sprintf("订阅拉取完成: %d/%d 个源有效，共 %d 个节点", activeSources, len(subs), len(nodes)))

	// 2. 提取去重IP
	candidates := proxies.ExtractCandidates(nodes)
	if len(candidates) == 0 {
		return nil, app.recordFailure("extract", ErrNoIPs)
	}

	// 3. 缓存空间检查
	app.cache.SweepIfNeeded()

	// 4. 纯净度检测
	reports := check.CheckAll(app.ctx, app.client, candidates)

	// 5. 排序过滤
	pure := check.Rank(reports, config.GlobalConfig.RiskThreshold, config.GlobalConfig.MaxNodes)
	if len(pure) == 0 {
		return nil, app.recordFailure("rank", ErrNoPureIPs)
	}

	// 6. 合成配置
	yamlData, err := save.BuildRankedConfig(pure, config.GlobalConfig.MaxNodes).Render()
	if err != nil {
		return nil, app.recordFailure("synthesize", err)
	}

	// 7. 发布：只有合成成功才覆盖上一次的配置
	if err := app.kv.Put(clashConfigKey, string(yamlData), 0); err != nil {
		slog.Error(fmt.Sprintf("配置写入KV失败: %v", err))
	}
	save.SaveConfig(pure)

	if err := app.creds.Save(); err != nil {
		slog.Warn(fmt.Sprintf("保存密钥池失败: %v", err))
	}

	// 8. 记录统计
	stats := &RunStats{
		Time:          time.Now().Format("2006-01-02 15:04:05"),
		DurationSec:   int64(time.Since(start).Seconds()),
		Subscriptions: len(subs),
		ActiveSources: activeSources,
		TotalNodes:    len(nodes),
		UniqueIPs:     len(candidates),
		PureIPs:       len(pure),
	}
	if data, err := json.Marshal(stats); err == nil {
		if err := app.kv.Put(lastResultKey, string(data), lastResultTTL); err != nil {
			slog.Warn(fmt.Sprintf("保存检测统计失败: %v", err))
		}
	}
	_ = app.kv.Delete(lastErrorKey)

	slog.Info(fmt.Sprintf("检测完成: %d 个纯净IP / %d 个候选，耗时 %ds",
		stats.PureIPs, stats.UniqueIPs, stats.DurationSec))
	return stats, nil
}

// recordFailure 把失败记录写入KV后原样返回错误
func (app *App) recordFailure(stage string, err error) error {
	rec := RunError{
		Stage: stage,
		Error: err.Error(),
		Time:  time.Now().Format("2006-01-02 15:04:05"),
	}
	if data, merr := json.Marshal(rec); merr == nil {
		if perr := app.kv.Put(lastErrorKey, string(data), lastErrorTTL); perr != nil {
			slog.Warn(fmt.Sprintf("保存失败记录失败: %v", perr))
		}
	}
	return &StageError{Stage: stage, Err: err}
}

// saveSubStats 按需把订阅状态落成统计文件
func (app *App) saveSubStats(subs []*proxies.Subscription) {
	if !config.GlobalConfig.SubURLsStats {
		return
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return
	}
	if err := method.SaveToStats(data, "sub_stats.json", "保存订阅统计成功"); err != nil {
		slog.Warn(fmt.Sprintf("保存订阅统计失败: %v", err))
	}
}
