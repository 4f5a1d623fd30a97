package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/utils"
	"gopkg.in/yaml.v3"
)

// initConfigPath 初始化配置文件路径
func (app *App) initConfigPath() error {
	if app.configPath == "" {
		execPath := utils.GetExecutablePath()
		configDir := filepath.Join(execPath, "config")

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}

		app.configPath = filepath.Join(configDir, "config.yaml")
	}
	return nil
}

// loadConfig 加载配置文件
func (app *App) loadConfig() error {
	yamlFile, err := os.ReadFile(app.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return app.createDefaultConfig()
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 为避免旧配置残留，反序列化到新的实例，然后替换全局配置
	newConfig := new(config.Config)
	if err := yaml.Unmarshal(yamlFile, newConfig); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	*config.GlobalConfig = *newConfig

	// 配置里指定了日志级别时同步调整
	if config.GlobalConfig.LogLevel != "" {
		utils.SetLogLevel(config.GlobalConfig.LogLevel)
	}

	slog.Info("配置文件读取成功")
	return nil
}

// createDefaultConfig 创建默认配置文件
func (app *App) createDefaultConfig() error {
	slog.Info("配置文件不存在，创建默认配置文件")

	if err := os.WriteFile(app.configPath, config.DefaultConfigTemplate, 0644); err != nil {
		return fmt.Errorf("写入默认配置文件失败: %w", err)
	}

	slog.Info("默认配置文件创建成功")
	slog.Info(fmt.Sprintf("请编辑配置文件: %s", app.configPath))
	os.Exit(0)
	return nil
}

// initConfigWatcher 初始化配置文件监听
func (app *App) initConfigWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}

	app.watcher = watcher

	// 防抖定时器，防止vscode等软件先临时创建文件再覆盖，会产生两次write事件
	var debounceTimer *time.Timer
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if absPath, _ := filepath.Abs(app.configPath); event.Name != absPath {
					continue
				}
				// 兼容容器外修改
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}

					// 延迟100ms执行，合并连续的写入事件
					debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
						app.reloadConfig()
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error(fmt.Sprintf("配置文件监听错误: %v", err))
			}
		}
	}()

	// 开始监听配置文件目录
	if err := watcher.Add(filepath.Dir(app.configPath)); err != nil {
		return fmt.Errorf("添加配置文件监听失败: %w", err)
	}

	slog.Info("配置文件监听已启动")
	return nil
}

// reloadConfig 配置文件变化后的重载逻辑
func (app *App) reloadConfig() {
	slog.Info("配置文件发生变化，正在重新加载")
	oldCronExpr := config.GlobalConfig.CronExpression
	oldInterval := app.interval

	if err := app.loadConfig(); err != nil {
		slog.Error(fmt.Sprintf("重新加载配置文件失败: %v", err))
		return
	}

	// api-key留空时保留首次运行生成的key，避免重载后管理接口失联
	if config.GlobalConfig.APIKey == "" {
		if apiKey := os.Getenv("API_KEY"); apiKey != "" {
			config.GlobalConfig.APIKey = apiKey
		} else if geneAPIKey != "" {
			config.GlobalConfig.APIKey = geneAPIKey
			slog.Debug("保留首次运行自动生成的API key", "api-key", config.GlobalConfig.APIKey)
		} else {
			config.GlobalConfig.APIKey = utils.GenerateRandomString(10)
			geneAPIKey = config.GlobalConfig.APIKey
			slog.Warn("未设置api-key，已随机生成", "api-key", config.GlobalConfig.APIKey)
		}
	}

	// 提供商密钥或策略可能变了，重建检测组件
	app.initCheckStack()

	// 检查cron表达式或检测间隔是否变化
	if oldCronExpr != config.GlobalConfig.CronExpression ||
		oldInterval != config.GlobalConfig.CheckInterval {

		app.interval = func() int {
			if config.GlobalConfig.CheckInterval <= 0 {
				return 1
			}
			return config.GlobalConfig.CheckInterval
		}()
		slog.Warn("检测设置发生变化，重新配置定时器")

		app.setTimer()
	}
}
