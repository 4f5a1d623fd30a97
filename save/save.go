package save

import (
	"fmt"
	"log/slog"

	"github.com/twj0/ip-address-purity-checker/check"
	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/save/method"
)

// ConfigCategory 一份输出文件：文件名和节点数上限
type ConfigCategory struct {
	Name     string
	MaxNodes int
}

// ConfigSaver 处理配置保存的结构体
type ConfigSaver struct {
	reports    []check.Report
	categories []ConfigCategory
	saveMethod func([]byte, string) error
}

// NewConfigSaver 创建新的配置保存器
func NewConfigSaver(reports []check.Report) *ConfigSaver {
	return &ConfigSaver{
		reports:    reports,
		saveMethod: chooseSaveMethod(),
		categories: []ConfigCategory{
			{Name: "purity.yaml", MaxNodes: config.GlobalConfig.MaxNodes},
			{Name: "purity_light.yaml", MaxNodes: config.GlobalConfig.LightMaxNodes},
		},
	}
}

// SaveConfig 保存配置的入口函数。
// 先强制落一份本地，再按配置的保存方式发布；远端失败时本地副本仍在。
func SaveConfig(reports []check.Report) {
	tmp := config.GlobalConfig.SaveMethod
	config.GlobalConfig.SaveMethod = "local"
	{
		saver := NewConfigSaver(reports)
		if err := saver.Save(); err != nil {
			slog.Error(fmt.Sprintf("保存配置失败: %v", err))
		}
	}

	if tmp == "local" {
		return
	}
	config.GlobalConfig.SaveMethod = tmp
	{
		saver := NewConfigSaver(reports)
		if err := saver.Save(); err != nil {
			slog.Error(fmt.Sprintf("保存配置失败: %v", err))
		}
	}
}

// Save 执行保存操作
func (cs *ConfigSaver) Save() error {
	for _, category := range cs.categories {
		if err := cs.saveCategory(category); err != nil {
			slog.Error(fmt.Sprintf("保存到%s失败: %v", config.GlobalConfig.SaveMethod, err))
			continue
		}
	}
	return nil
}

// saveCategory 渲染并保存单个输出文件
func (cs *ConfigSaver) saveCategory(category ConfigCategory) error {
	if len(cs.reports) == 0 {
		slog.Warn(fmt.Sprintf("纯净节点为空，跳过保存: %s, saveMethod: %s", category.Name, config.GlobalConfig.SaveMethod))
		return nil
	}

	yamlData, err := BuildRankedConfig(cs.reports, category.MaxNodes).Render()
	if err != nil {
		return fmt.Errorf("渲染 %s 失败: %w", category.Name, err)
	}
	if err := cs.saveMethod(yamlData, category.Name); err != nil {
		return fmt.Errorf("保存 %s 失败: %w", category.Name, err)
	}
	return nil
}

// chooseSaveMethod 根据配置选择保存方法
func chooseSaveMethod() func([]byte, string) error {
	switch config.GlobalConfig.SaveMethod {
	case "webdav":
		if err := method.ValiWebDAVConfig(); err != nil {
			return func(b []byte, s string) error { return fmt.Errorf("webDAV配置不完整: %v", err) }
		}
		// 单例uploader，避免每个文件都重建client和探测代理
		uploader := method.NewWebDAVUploader()
		return func(yamlData []byte, filename string) error {
			return uploader.Upload(yamlData, filename)
		}
	case "s3":
		if err := method.ValiS3Config(); err != nil {
			return func(b []byte, s string) error { return fmt.Errorf("S3配置不完整: %v", err) }
		}
		return method.UploadToS3
	case "local":
		saver, err := method.NewLocalSaver()
		if err != nil {
			return func(b []byte, s string) error { return fmt.Errorf("本地保存器创建失败: %v", err) }
		}
		return saver.Save
	default:
		return func(b []byte, s string) error {
			return fmt.Errorf("未知的保存方法或其他方法配置错误: %v", config.GlobalConfig.SaveMethod)
		}
	}
}
