package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/juju/ratelimit"
	"github.com/twj0/ip-address-purity-checker/config"
)

// ErrQuotaExceeded 密钥额度耗尽或被限流，调用方应禁用该密钥后换下一个
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// Provider 单个IP信誉数据源
type Provider interface {
	Name() string
	// NeedsKey 为true时每次调用必须携带密钥
	NeedsKey() bool
	Check(ctx context.Context, ip, key string) (Result, error)
}

// Client 串联所有信誉提供商：缓存优先，逐个尝试，先成功者生效。
// 全部失败时给出保守的兜底结论并短期缓存。
type Client struct {
	providers []Provider
	cache     *Cache
	creds     *CredentialStore
	limiters  map[string]*ratelimit.Bucket
	geo       *GeoResolver
}

// NewClient 按配置组装提供商链，顺序固定：proxycheck → ipinfo → ip-api
func NewClient(cache *Cache, creds *CredentialStore, geo *GeoResolver) *Client {
	cfg := config.GlobalConfig
	timeout := time.Duration(cfg.ProviderTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	providers := []Provider{
		NewProxyCheckProvider(cfg.ProxyCheck.BaseURL, httpClient),
		NewIPInfoProvider(cfg.IPInfo.BaseURL, httpClient),
		NewIPAPIProvider(cfg.IPAPI.BaseURL, httpClient),
	}

	rps := cfg.ProviderRPS
	if rps <= 0 {
		rps = 2
	}
	limiters := make(map[string]*ratelimit.Bucket, len(providers))
	for _, p := range providers {
		// 每个提供商独立限速，互不拖累
		limiters[p.Name()] = ratelimit.NewBucketWithRate(float64(rps), int64(rps))
	}

	return &Client{
		providers: providers,
		cache:     cache,
		creds:     creds,
		limiters:  limiters,
		geo:       geo,
	}
}

// Check 查询单个IP的纯净度，缓存命中时不产生任何外部请求
func (c *Client) Check(ctx context.Context, ip string) Result {
	if res, ok := c.cache.Get(ip); ok {
		res.CacheHit = true
		return res
	}

	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}

		var key string
		if p.NeedsKey() {
			cred := c.creds.Next(p.Name())
			if cred == nil {
				slog.Debug(fmt.Sprintf("提供商 %s 无可用密钥，跳过", p.Name()))
				continue
			}
			key = cred.Key
		}

		if bucket := c.limiters[p.Name()]; bucket != nil {
			bucket.Wait(1)
		}

		res, err := p.Check(ctx, ip, key)
		if err != nil {
			if errors.Is(err, ErrQuotaExceeded) && key != "" {
				c.creds.MarkQuota(p.Name(), key)
			} else {
				slog.Debug(fmt.Sprintf("提供商 %s 查询 %s 失败: %v", p.Name(), ip, err))
			}
			continue
		}

		if key != "" {
			c.creds.MarkSuccess(p.Name(), key)
		}

		res.IP = ip
		res.CheckedAt = time.Now()
		if res.Country == "" {
			res.Country = c.geo.Country(ip)
		}
		if res.Country == "" {
			res.Country = "Unknown"
		}
		if err := c.cache.Put(ip, res); err != nil {
			slog.Warn(fmt.Sprintf("缓存写入失败: %v", err))
		}
		return res
	}

	// 所有渠道都失败：保守起见按不纯净处理，短期缓存避免反复打失败的API
	fallback := Result{
		IP:        ip,
		IsPure:    false,
		RiskScore: 100,
		Country:   "Unknown",
		Provider:  "fallback",
		CheckedAt: time.Now(),
	}
	if err := c.cache.PutError(ip, fallback); err != nil {
		slog.Warn(fmt.Sprintf("缓存写入失败: %v", err))
	}
	return fallback
}

// isQuotaStatus 额度类HTTP状态码
func isQuotaStatus(code int) bool {
	return code == http.StatusPaymentRequired || code == http.StatusTooManyRequests
}
