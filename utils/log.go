package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logWriter *lumberjack.Logger
	logLevel  = new(slog.LevelVar)
)

// LogFilePath 返回滚动日志文件路径，供日志接口读取
func LogFilePath() string {
	return filepath.Join(os.TempDir(), "ip-purity-check.log")
}

// InitLogger 初始化全局日志：彩色控制台输出 + 滚动文件
func InitLogger(level string) {
	logWriter = &lumberjack.Logger{
		Filename:   LogFilePath(),
		MaxSize:    10, // 每个日志文件最大 10MB
		MaxBackups: 3,  // 保留 3 个旧文件
		MaxAge:     14, // 保留 14 天
	}

	logLevel.Set(parseLevel(level))
	console := colorable.NewColorable(os.Stdout)

	handler := tint.NewHandler(io.MultiWriter(console, logWriter), &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02 15:04:05",
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel 运行时调整日志级别，配置重载时调用
func SetLogLevel(level string) {
	logLevel.Set(parseLevel(level))
}

// CloseLogger 关闭日志文件
func CloseLogger() {
	if logWriter != nil {
		if err := logWriter.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "关闭日志文件失败: %v\n", err)
		}
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FormatDuration 按常见的时分秒格式输出耗时
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
