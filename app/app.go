// Package app 应用程序主入口
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/twj0/ip-address-purity-checker/app/monitor"
	"github.com/twj0/ip-address-purity-checker/check"
	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/store"
	"github.com/twj0/ip-address-purity-checker/utils"
)

// App 结构体用于管理应用程序状态
type App struct {
	ctx        context.Context
	cancel     context.CancelFunc
	configPath string
	interval   int
	watcher    *fsnotify.Watcher
	checkChan  chan struct{} // 触发检测的通道
	checking   atomic.Bool   // 检测状态标志
	ticker     *time.Ticker
	done       chan struct{} // 用于结束ticker goroutine的信号
	cron       *cron.Cron    // crontab调度器
	version    string
	httpServer *http.Server
	stopCh     <-chan struct{}

	kv     store.Store
	cache  *check.Cache
	creds  *check.CredentialStore
	geo    *check.GeoResolver
	client *check.Client

	lastMu    sync.Mutex
	lastStats *RunStats
}

// New 创建新的应用实例
// 不在这里调用 flag.Parse() 或定义 flags，全部由 main 负责。
func New(version string, configPath string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		ctx:        ctx,
		cancel:     cancel,
		configPath: configPath,
		checkChan:  make(chan struct{}),
		done:       make(chan struct{}),
		version:    version,
	}
}

// Initialize 初始化应用程序
func (app *App) Initialize() error {
	// 初始化配置文件路径
	if err := app.initConfigPath(); err != nil {
		return fmt.Errorf("初始化配置文件路径失败: %w", err)
	}

	// 加载配置文件
	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("加载配置文件失败: %w", err)
	}

	// 初始化KV存储
	if err := app.initStore(); err != nil {
		return fmt.Errorf("初始化KV存储失败: %w", err)
	}

	// 初始化检测组件
	app.initCheckStack()

	// 初始化配置文件监听
	if err := app.initConfigWatcher(); err != nil {
		return fmt.Errorf("初始化配置文件监听失败: %w", err)
	}

	app.interval = func() int {
		if config.GlobalConfig.CheckInterval <= 0 {
			return 1
		}
		return config.GlobalConfig.CheckInterval
	}()

	if config.GlobalConfig.ListenPort != "" {
		if err := app.initHTTPServer(); err != nil {
			return fmt.Errorf("初始化HTTP服务器失败: %w", err)
		}
	}

	// 启动内存监控
	monitor.StartMemoryMonitor()

	// 注册 ShutdownHook（第二次 Ctrl+C 立即调用）
	utils.ShutdownHook = func() {
		slog.Warn("立即退出程序")
		err := app.Shutdown()
		if err != nil {
			slog.Error("关闭应用失败", "err", err)
		} else {
			os.Exit(0)
		}
	}

	// 设置信号处理器
	app.stopCh = utils.SetupSignalHandler(&check.ForceClose, &app.checking)

	return nil
}

// initStore 打开文件KV存储，目录默认在可执行文件旁的data/
func (app *App) initStore() error {
	dataDir := config.GlobalConfig.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(utils.GetExecutablePath(), "data")
	}
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(utils.GetExecutablePath(), dataDir)
	}

	kv, err := store.NewFileStore(dataDir)
	if err != nil {
		return err
	}
	app.kv = kv
	slog.Info("KV存储已就绪", "目录", dataDir)
	return nil
}

// initCheckStack 组装缓存、密钥池、地理库和提供商客户端。
// 配置重载后会重新调用，保持各组件与最新配置一致。
func (app *App) initCheckStack() {
	cfg := config.GlobalConfig

	app.cache = check.NewCache(app.kv, cfg.CacheTTLDays, cfg.CacheSoftLimit)

	if app.creds == nil {
		app.creds = check.NewCredentialStore(app.kv, cfg.RotationStrategy)
		if err := app.creds.Load(); err != nil {
			slog.Warn(fmt.Sprintf("恢复密钥池失败，按全新状态处理: %v", err))
		}
	}
	app.creds.SetKeys("proxycheck", cfg.ProxyCheck.Keys)
	app.creds.SetKeys("ipinfo", cfg.IPInfo.Keys)

	if app.geo == nil {
		app.geo = check.NewGeoResolver(cfg.MaxMindDBPath)
	}
	app.client = check.NewClient(app.cache, app.creds, app.geo)
}

// Run 运行应用程序主循环
func (app *App) Run() {
	defer func() {
		if app.watcher != nil {
			_ = app.watcher.Close()
		}
		if app.ticker != nil {
			app.ticker.Stop()
		}
		if app.cron != nil {
			app.cron.Stop()
		}
	}()

	app.setTimer()

	if config.GlobalConfig.CronExpression != "" {
		slog.Warn("使用cron表达式，首次启动不立即执行检测")
	} else {
		app.triggerCheck()
	}

	// 并发处理 checkChan
	go func() {
		for range app.checkChan {
			go app.triggerCheck()
		}
	}()

	// 阻塞等待 stopCh 被关闭
	<-app.stopCh
	err := app.Shutdown()
	if err != nil {
		slog.Error("关闭应用失败", "err", err)
	}
}

// setTimer 根据配置设置定时器
func (app *App) setTimer() {
	// 停止现有定时器
	if app.ticker != nil {
		// 先发送停止信号，防止被置nil后panic
		close(app.done)
		app.done = make(chan struct{})
		app.ticker.Stop()
		app.ticker = nil
	}

	// 停止现有cron
	if app.cron != nil {
		app.cron.Stop()
		app.cron = nil
	}

	if config.GlobalConfig.CronExpression != "" {
		slog.Info(fmt.Sprintf("使用cron表达式: %s", config.GlobalConfig.CronExpression))
		app.cron = cron.New()
		_, err := app.cron.AddFunc(config.GlobalConfig.CronExpression, func() {
			app.triggerCheck()
		})
		if err != nil {
			app.cron.Stop()
			slog.Error(fmt.Sprintf("cron表达式 '%s' 解析失败: %v，将使用检查间隔时间",
				config.GlobalConfig.CronExpression, err))
			app.useIntervalTimer()
		} else {
			app.cron.Start()
		}
	} else {
		app.useIntervalTimer()
	}
}

// useIntervalTimer 使用间隔时间模式运行
func (app *App) useIntervalTimer() {
	app.ticker = time.NewTicker(time.Duration(app.interval) * time.Minute)
	done := app.done
	go func() {
		for {
			select {
			case <-app.ticker.C:
				app.triggerCheck()
			case <-done:
				return // 收到停止信号，退出goroutine
			}
		}
	}()
}

// TriggerCheck 供外部调用的触发检测方法
func (app *App) TriggerCheck() {
	select {
	case app.checkChan <- struct{}{}:
		slog.Info("手动触发检测")
	default:
		slog.Warn("已有检测正在进行，忽略本次触发")
	}
}

// triggerCheck 内部检测方法
func (app *App) triggerCheck() {
	// 如果已经在检测中，直接返回
	if !app.checking.CompareAndSwap(false, true) {
		slog.Warn("已有检测正在进行，跳过本次检测")
		return
	}
	defer app.checking.Store(false)

	stats, err := app.runPipeline()
	if err != nil {
		slog.Error(fmt.Sprintf("检测失败: %v", err))
	} else {
		app.lastMu.Lock()
		app.lastStats = stats
		app.lastMu.Unlock()
	}

	// 检测完成后显示下次检查时间
	if app.ticker != nil {
		app.ticker.Reset(time.Duration(app.interval) * time.Minute)
		nextCheck := time.Now().Add(time.Duration(app.interval) * time.Minute)
		slog.Info(fmt.Sprintf("下次检查时间: %s", nextCheck.Format("2006-01-02 15:04:05")))
	} else if app.cron != nil {
		entries := app.cron.Entries()
		if len(entries) > 0 {
			slog.Info(fmt.Sprintf("下次检查时间: %s", entries[0].Next.Format("2006-01-02 15:04:05")))
		}
	}
	debug.FreeOSMemory()
}

// runPipelineGuarded 同步执行一次检测，已有检测进行中时返回错误
func (app *App) runPipelineGuarded() (*RunStats, error) {
	if !app.checking.CompareAndSwap(false, true) {
		return nil, errors.New("已有检测正在进行")
	}
	defer app.checking.Store(false)

	stats, err := app.runPipeline()
	if err == nil {
		app.lastMu.Lock()
		app.lastStats = stats
		app.lastMu.Unlock()
	}
	return stats, err
}

// Shutdown 尝试优雅关闭所有子服务与资源
func (app *App) Shutdown() error {
	slog.Debug("开始关闭应用...")

	var lastErr error

	// 取消上下文，通知检测流水线退出
	if app.cancel != nil {
		app.cancel()
	}

	if app.ticker != nil {
		app.ticker.Stop()
	}
	if app.cron != nil {
		app.cron.Stop()
	}
	if app.watcher != nil {
		lastErr = app.watcher.Close()
	}

	// 优雅关闭 HTTP 服务
	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.httpServer.Shutdown(ctx); err != nil {
			lastErr = errors.New("关闭 HTTP 服务器失败: " + err.Error())
			slog.Error("关闭 HTTP 服务器失败", "err", err)
		} else {
			listenPort := strings.TrimPrefix(config.GlobalConfig.ListenPort, ":")
			slog.Info("HTTP 服务器关闭", "port", listenPort)
		}
	}

	// 保存密钥池状态，下次启动接着用
	if app.creds != nil {
		if err := app.creds.Save(); err != nil {
			slog.Warn(fmt.Sprintf("保存密钥池失败: %v", err))
		}
	}
	if app.geo != nil {
		app.geo.Close()
	}

	// 关闭 done 通道以通知定时 goroutine 退出（如果仍在）
	select {
	case <-app.done:
	default:
		// 保护性关闭 done，避免 panic
		close(app.done)
	}

	// 等待短时间，给子 goroutine 清理时间
	time.Sleep(500 * time.Millisecond)

	slog.Info("应用已关闭")
	utils.CloseLogger()
	return lastErr
}
