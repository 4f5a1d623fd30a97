package method

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/twj0/ip-address-purity-checker/config"
)

// ValiS3Config 验证S3/R2配置
func ValiS3Config() error {
	if config.GlobalConfig.S3Endpoint == "" {
		return fmt.Errorf("s3 endpoint未配置")
	}
	if config.GlobalConfig.S3AccessID == "" {
		return fmt.Errorf("s3 access id未配置")
	}
	if config.GlobalConfig.S3SecretKey == "" {
		return fmt.Errorf("s3 secret key未配置")
	}
	if config.GlobalConfig.S3Bucket == "" {
		return fmt.Errorf("s3 bucket未配置")
	}
	return nil
}

// UploadToS3 上传数据到S3兼容存储（AWS S3、Cloudflare R2、MinIO均可）
func UploadToS3(yamlData []byte, filename string) error {
	if len(yamlData) == 0 {
		return fmt.Errorf("yaml数据为空")
	}
	if filename == "" {
		return fmt.Errorf("filename不能为空")
	}

	client, err := minio.New(config.GlobalConfig.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.GlobalConfig.S3AccessID, config.GlobalConfig.S3SecretKey, ""),
		Secure: config.GlobalConfig.S3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("创建S3客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = client.PutObject(ctx, config.GlobalConfig.S3Bucket, filename,
		bytes.NewReader(yamlData), int64(len(yamlData)),
		minio.PutObjectOptions{ContentType: "application/x-yaml"})
	if err != nil {
		return fmt.Errorf("S3上传失败: %w", err)
	}

	slog.Info("S3上传成功", "bucket", config.GlobalConfig.S3Bucket, "filename", filename)
	return nil
}
