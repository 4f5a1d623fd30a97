package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/save/method"
)

const defaultBackupName = "purity-backup.json"

// BackupPayload 一份完整的应用状态备份：
// 订阅注册表、密钥池和配置文件原文，打包成一个JSON文件走WebDAV。
type BackupPayload struct {
	Subscriptions   json.RawMessage `json:"subscriptions,omitempty"`
	CredentialPools json.RawMessage `json:"credentialPools,omitempty"`
	Settings        string          `json:"settings,omitempty"`
}

func backupFilename() string {
	if config.GlobalConfig.BackupPath != "" {
		return config.GlobalConfig.BackupPath
	}
	return defaultBackupName
}

// PushBackup 打包当前状态并上传到WebDAV
func (app *App) PushBackup() error {
	if err := method.ValiWebDAVConfig(); err != nil {
		return fmt.Errorf("webDAV配置不完整: %w", err)
	}

	payload := BackupPayload{}

	if raw, ok, err := app.kv.Get("subscriptions"); err == nil && ok {
		payload.Subscriptions = json.RawMessage(raw)
	}
	if raw, ok, err := app.kv.Get("credential_pools"); err == nil && ok {
		payload.CredentialPools = json.RawMessage(raw)
	}
	if data, err := os.ReadFile(app.configPath); err == nil {
		payload.Settings = string(data)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化备份失败: %w", err)
	}

	uploader := method.NewWebDAVUploader()
	if uploader == nil {
		return errors.New("创建WebDAV上传器失败")
	}
	// Upload自带重试
	if err := uploader.Upload(data, backupFilename()); err != nil {
		return err
	}
	slog.Info("备份已上传", "filename", backupFilename())
	return nil
}

// PullBackup 从WebDAV取回备份并恢复订阅注册表与密钥池。
// 配置文件原文只落到备份目录旁，不直接覆盖当前配置。
func (app *App) PullBackup() error {
	if err := method.ValiWebDAVConfig(); err != nil {
		return fmt.Errorf("webDAV配置不完整: %w", err)
	}

	uploader := method.NewWebDAVUploader()
	if uploader == nil {
		return errors.New("创建WebDAV上传器失败")
	}

	data, err := uploader.Download(backupFilename())
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("备份文件不存在: %s", backupFilename())
	}

	var payload BackupPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("解析备份失败: %w", err)
	}

	if len(payload.Subscriptions) > 0 {
		if err := app.kv.Put("subscriptions", string(payload.Subscriptions), 0); err != nil {
			return fmt.Errorf("恢复订阅注册表失败: %w", err)
		}
	}
	if len(payload.CredentialPools) > 0 {
		if err := app.kv.Put("credential_pools", string(payload.CredentialPools), 0); err != nil {
			return fmt.Errorf("恢复密钥池失败: %w", err)
		}
		if err := app.creds.Load(); err != nil {
			slog.Warn(fmt.Sprintf("重新加载密钥池失败: %v", err))
		}
	}
	if payload.Settings != "" {
		restored := app.configPath + ".restored"
		if err := os.WriteFile(restored, []byte(payload.Settings), 0644); err != nil {
			slog.Warn(fmt.Sprintf("写出恢复的配置文件失败: %v", err))
		} else {
			slog.Info("备份中的配置已写出，请人工确认后替换", "路径", restored)
		}
	}

	slog.Info("备份恢复完成")
	return nil
}
