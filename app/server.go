package app

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/twj0/ip-address-purity-checker/check"
	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/save/method"
	"github.com/twj0/ip-address-purity-checker/utils"
	"gopkg.in/yaml.v3"
)

var geneAPIKey string

// initHTTPServer 初始化HTTP服务器
func (app *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	saver, err := method.NewLocalSaver()
	if err != nil {
		return fmt.Errorf("获取http监听目录失败: %w", err)
	}

	if config.GlobalConfig.APIKey == "" {
		if apiKey := os.Getenv("API_KEY"); apiKey != "" {
			config.GlobalConfig.APIKey = apiKey
		} else {
			config.GlobalConfig.APIKey = utils.GenerateRandomString(10)
			geneAPIKey = config.GlobalConfig.APIKey
			slog.Warn("未设置api-key，已随机生成", "api-key", config.GlobalConfig.APIKey)
		}
	}

	// 通过认证访问的订阅文件
	router.Use(app.authMiddleware())

	router.GET("/purity.yaml", func(c *gin.Context) {
		c.File(saver.OutputPath + "/purity.yaml")
	})
	router.GET("/purity_light.yaml", func(c *gin.Context) {
		c.File(saver.OutputPath + "/purity_light.yaml")
	})

	// API路由
	api := router.Group("/api")
	api.Use(app.authMiddleware())
	{
		// 配置相关API
		api.GET("/config", app.getConfig)
		api.POST("/config", app.updateConfig)

		// 状态相关API
		api.GET("/status", app.getStatus)
		api.POST("/trigger-check", app.triggerCheckHandler)
		api.POST("/force-close", app.forceCloseHandler)

		// 缓存相关API
		api.GET("/cache/stats", app.cacheStatsHandler)
		api.POST("/cache/clear", app.cacheClearHandler)

		// 备份相关API
		api.POST("/backup/push", app.backupPushHandler)
		api.POST("/backup/pull", app.backupPullHandler)

		// 日志相关API
		api.GET("/logs", app.getLogs)
	}

	srv := &http.Server{
		Addr:    config.GlobalConfig.ListenPort,
		Handler: router,
	}
	app.httpServer = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("HTTP服务器启动失败: %v", err))
		}
	}()
	slog.Info("HTTP服务器启动", "port", config.GlobalConfig.ListenPort)

	return nil
}

// authMiddleware API认证中间件
func (app *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		// 动态获取apikey
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(config.GlobalConfig.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的API密钥"})
			return
		}
		c.Next()
	}
}

// getConfig 获取配置文件内容
func (app *App) getConfig(c *gin.Context) {
	configData, err := os.ReadFile(app.configPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("读取配置文件失败: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": string(configData),
	})
}

// updateConfig 更新配置文件内容
func (app *App) updateConfig(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}
	// 验证YAML格式
	var yamlData map[string]any
	if err := yaml.Unmarshal([]byte(req.Content), &yamlData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("YAML格式错误: %v", err)})
		return
	}

	// 写入新配置
	if err := os.WriteFile(app.configPath, []byte(req.Content), 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("保存配置文件失败: %v", err)})
		return
	}

	// 配置文件监听器会自动重新加载配置
	c.JSON(http.StatusOK, gin.H{"message": "配置已更新"})
}

// getStatus 获取应用状态
func (app *App) getStatus(c *gin.Context) {
	app.lastMu.Lock()
	lastStats := app.lastStats
	app.lastMu.Unlock()

	resp := gin.H{
		"checking":   app.checking.Load(),
		"progress":   check.Progress.Load(),
		"totalCount": check.TotalCount.Load(),
	}
	if lastStats != nil {
		resp["lastCheck"] = lastStats
	}
	// 最近一次失败记录（若存在）
	if raw, ok, err := app.kv.Get(lastErrorKey); err == nil && ok {
		resp["lastError"] = raw
	}

	c.JSON(http.StatusOK, resp)
}

// triggerCheckHandler 同步执行一次检测并返回结果
func (app *App) triggerCheckHandler(c *gin.Context) {
	stats, err := app.runPipelineGuarded()
	if err != nil {
		stage := "unknown"
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"stage":   stage,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

// forceCloseHandler 强制中止当前检测
func (app *App) forceCloseHandler(c *gin.Context) {
	check.ForceClose.Store(true)
	c.JSON(http.StatusOK, gin.H{"message": "已强制关闭"})
}

// cacheStatsHandler 缓存占用概况
func (app *App) cacheStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, app.cache.Stats())
}

// cacheClearHandler 清空IP缓存
func (app *App) cacheClearHandler(c *gin.Context) {
	n, err := app.cache.Clear()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("清空缓存失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "缓存已清空", "removed": n})
}

// backupPushHandler 推送备份到WebDAV
func (app *App) backupPushHandler(c *gin.Context) {
	if err := app.PushBackup(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("备份失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "备份成功"})
}

// backupPullHandler 从WebDAV恢复备份
func (app *App) backupPullHandler(c *gin.Context) {
	if err := app.PullBackup(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("恢复失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "恢复成功"})
}

// getLogs 获取最近日志
func (app *App) getLogs(c *gin.Context) {
	n := 200
	if q := c.Query("lines"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 && parsed <= 2000 {
			n = parsed
		}
	}

	logPath := utils.LogFilePath()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		c.JSON(http.StatusOK, gin.H{"logs": []string{}})
		return
	}
	lines, err := ReadLastNLines(logPath, n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("读取日志失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines})
}

// ReadLastNLines 用环形缓冲区读取文件最后n行
func ReadLastNLines(filePath string, n int) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	ring := make([]string, n)
	count := 0

	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if count <= n {
		return ring[:count], nil
	}

	// 调整顺序，从最旧到最新
	start := count % n
	result := append(ring[start:], ring[:start]...)
	return result, nil
}
