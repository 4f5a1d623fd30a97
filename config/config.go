// Package config 解析配置文件
package config

import (
	_ "embed"
)

// ProviderPool 单个检测服务商的密钥池配置
type ProviderPool struct {
	BaseURL string   `yaml:"base-url"`
	Keys    []string `yaml:"keys"`
}

type Config struct {
	CheckInterval  int    `yaml:"check-interval"`
	CronExpression string `yaml:"cron-expression"`
	ListenPort     string `yaml:"listen-port"`
	APIKey         string `yaml:"api-key"`

	SubUrls              []string `yaml:"sub-urls"`
	SubUrlsRemote        []string `yaml:"sub-urls-remote"`
	SubUrlsReTry         int      `yaml:"sub-urls-retry"`
	SubUrlsRetryInterval int      `yaml:"sub-urls-retry-interval"`
	SubUrlsTimeout       int      `yaml:"sub-urls-timeout"`
	SubBatchSize         int      `yaml:"sub-batch-size"`
	SubBatchDelay        int      `yaml:"sub-batch-delay"`

	IPBatchSize     int `yaml:"ip-batch-size"`
	IPBatchDelay    int `yaml:"ip-batch-delay"`
	ProviderTimeout int `yaml:"provider-timeout"`
	ProviderRPS     int `yaml:"provider-rps"`

	ProxyCheck ProviderPool `yaml:"proxycheck"`
	IPInfo     ProviderPool `yaml:"ipinfo"`
	IPAPI      ProviderPool `yaml:"ip-api"`

	RotationStrategy string `yaml:"rotation-strategy"`

	CacheTTLDays   int `yaml:"cache-ttl-days"`
	CacheSoftLimit int `yaml:"cache-soft-limit"`

	RiskThreshold int `yaml:"risk-threshold"`
	MaxNodes      int `yaml:"max-nodes"`
	LightMaxNodes int `yaml:"light-max-nodes"`

	SaveMethod     string `yaml:"save-method"`
	OutputDir      string `yaml:"output-dir"`
	DataDir        string `yaml:"data-dir"`
	WebDAVURL      string `yaml:"webdav-url"`
	WebDAVUsername string `yaml:"webdav-username"`
	WebDAVPassword string `yaml:"webdav-password"`
	BackupPath     string `yaml:"backup-path"`
	S3Endpoint     string `yaml:"s3-endpoint"`
	S3AccessID     string `yaml:"s3-access-id"`
	S3SecretKey    string `yaml:"s3-secret-key"`
	S3Bucket       string `yaml:"s3-bucket"`
	S3UseSSL       bool   `yaml:"s3-use-ssl"`

	MaxMindDBPath    string   `yaml:"maxmind-db-path"`
	SystemProxy      string   `yaml:"system-proxy"`
	GithubProxy      string   `yaml:"github-proxy"`
	GithubProxyGroup []string `yaml:"ghproxy-group"`

	LogLevel     string `yaml:"log-level"`
	MemLimitMB   int    `yaml:"mem-limit-mb"`
	SubURLsStats bool   `yaml:"sub-urls-stats"`
}

var GlobalConfig = &Config{
	// 给未更改配置文件的用户一个默认值
	ListenPort:       ":8199",
	CheckInterval:    360,
	SubBatchSize:     5,
	SubBatchDelay:    1,
	IPBatchSize:      10,
	IPBatchDelay:     1,
	ProviderTimeout:  10,
	RotationStrategy: "round-robin",
	CacheTTLDays:     14,
	CacheSoftLimit:   10000,
	RiskThreshold:    50,
	MaxNodes:         500,
	LightMaxNodes:    100,
	SaveMethod:       "local",
	IPAPI:            ProviderPool{BaseURL: "http://ip-api.com"},
	ProxyCheck:       ProviderPool{BaseURL: "https://proxycheck.io"},
	IPInfo:           ProviderPool{BaseURL: "https://ipinfo.io"},
}

//go:embed config.example.yaml
var DefaultConfigTemplate []byte
