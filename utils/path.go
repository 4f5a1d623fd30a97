package utils

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// GetExecutablePath 返回可执行文件所在目录，失败时退回当前工作目录
func GetExecutablePath() string {
	ex, err := os.Executable()
	if err != nil {
		slog.Warn(fmt.Sprintf("获取程序路径失败，使用当前目录: %v", err))
		if wd, werr := os.Getwd(); werr == nil {
			return wd
		}
		return "."
	}
	return filepath.Dir(ex)
}
