package method

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/utils"
)

// StatsSaver 保存检测统计文件的结构体
type StatsSaver struct {
	BasePath  string
	StatsPath string
}

// NewStatsSaver 创建新的统计保存器
func NewStatsSaver() (*StatsSaver, error) {
	basePath := utils.GetExecutablePath()
	if basePath == "" {
		return nil, fmt.Errorf("获取可执行文件路径失败")
	}

	var outputPath string
	if config.GlobalConfig.OutputDir != "" {
		outputPath = config.GlobalConfig.OutputDir
	} else {
		outputPath = filepath.Join(basePath, outputDirName)
	}

	statsPath := filepath.Join(outputPath, "stats")
	return &StatsSaver{
		BasePath:  basePath,
		StatsPath: statsPath,
	}, nil
}

// SaveToStats 保存统计数据到本地文件
func SaveToStats(data []byte, filename, message string) error {
	saver, err := NewStatsSaver()
	if err != nil {
		return fmt.Errorf("创建统计保存器失败: %w", err)
	}

	return saver.Save(data, filename, message)
}

// Save 执行保存操作
func (ls *StatsSaver) Save(data []byte, filename, message string) error {
	if err := ls.ensureStatsDir(); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	if err := ls.validateInput(data, filename); err != nil {
		return err
	}

	filepath := filepath.Join(ls.StatsPath, filename)
	if err := os.WriteFile(filepath, data, fileMode); err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	if message == "" {
		message = "保存检测统计成功"
	}
	slog.Info(message, "路径", filepath)

	return nil
}

// ensureStatsDir 确保输出目录存在
func (ls *StatsSaver) ensureStatsDir() error {
	if _, err := os.Stat(ls.StatsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(ls.StatsPath, dirMode); err != nil {
			return fmt.Errorf("创建目录失败 [%s]: %w", ls.StatsPath, err)
		}
	}
	return nil
}

// validateInput 验证输入参数
func (ls *StatsSaver) validateInput(data []byte, filename string) error {
	if len(data) == 0 {
		return fmt.Errorf("统计数据为空")
	}
	if filename == "" {
		return fmt.Errorf("filename不能为空")
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("filename包含非法字符: %s", filename)
	}
	return nil
}
