package check

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twj0/ip-address-purity-checker/store"
)

const (
	ipCachePrefix = "ip_cache_"
	// 查询失败的兜底结论只缓存一天，尽快给IP重测机会
	errorCacheTTL = 24 * time.Hour
)

// Cache IP信誉结论的TTL缓存，落在KV存储上
type Cache struct {
	kv        store.Store
	ttlDays   int
	softLimit int
}

// NewCache ttlDays超出7-30天范围时收紧到边界而不是报错
func NewCache(kv store.Store, ttlDays, softLimit int) *Cache {
	if ttlDays == 0 {
		ttlDays = 14
	}
	if ttlDays < 7 {
		ttlDays = 7
	}
	if ttlDays > 30 {
		ttlDays = 30
	}
	if softLimit <= 0 {
		softLimit = 10000
	}
	return &Cache{kv: kv, ttlDays: ttlDays, softLimit: softLimit}
}

// Get 命中返回缓存的结论；过期条目由底层存储惰性删除
func (c *Cache) Get(ip string) (Result, bool) {
	raw, ok, err := c.kv.Get(ipCachePrefix + ip)
	if err != nil || !ok {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		// 损坏条目直接清掉
		_ = c.kv.Delete(ipCachePrefix + ip)
		return Result{}, false
	}
	return res, true
}

// Put 按配置TTL写入一条结论
func (c *Cache) Put(ip string, res Result) error {
	return c.put(ip, res, time.Duration(c.ttlDays)*24*time.Hour)
}

// PutError 写入兜底结论，使用较短的错误TTL
func (c *Cache) PutError(ip string, res Result) error {
	return c.put(ip, res, errorCacheTTL)
}

func (c *Cache) put(ip string, res Result, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("序列化缓存条目失败: %w", err)
	}
	if err := c.kv.Put(ipCachePrefix+ip, string(data), ttl); err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	return nil
}

// SweepIfNeeded 条目数超过软上限的80%时触发一次清扫
func (c *Cache) SweepIfNeeded() {
	keys, err := c.kv.List(ipCachePrefix, 0)
	if err != nil {
		return
	}
	if len(keys) < c.softLimit*80/100 {
		return
	}
	slog.Info(fmt.Sprintf("缓存条目数 %d 接近上限 %d，开始清扫", len(keys), c.softLimit))
	c.Sweep()
}

// Sweep 遍历全部缓存键，删除已过期和无法解析的条目
func (c *Cache) Sweep() int {
	keys, err := c.kv.List(ipCachePrefix, 0)
	if err != nil {
		slog.Warn(fmt.Sprintf("缓存清扫失败: %v", err))
		return 0
	}

	removed := 0
	for _, key := range keys {
		raw, ok, err := c.kv.Get(key)
		if err != nil || !ok {
			// Get已惰性删除过期条目
			removed++
			continue
		}
		var res Result
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			_ = c.kv.Delete(key)
			removed++
		}
	}
	if removed > 0 {
		slog.Info(fmt.Sprintf("缓存清扫完成，移除 %d 条", removed))
	}
	return removed
}

// Clear 清空全部IP缓存
func (c *Cache) Clear() (int, error) {
	keys, err := c.kv.List(ipCachePrefix, 0)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := c.kv.Delete(key); err != nil {
			return 0, fmt.Errorf("删除缓存条目 %s 失败: %w", strings.TrimPrefix(key, ipCachePrefix), err)
		}
	}
	return len(keys), nil
}

// CacheStats 缓存占用概况
type CacheStats struct {
	Keys       int     `json:"keys"`
	SoftLimit  int     `json:"softLimit"`
	UsageRatio float64 `json:"usageRatio"`
}

func (c *Cache) Stats() CacheStats {
	keys, err := c.kv.List(ipCachePrefix, 0)
	if err != nil {
		return CacheStats{SoftLimit: c.softLimit}
	}
	return CacheStats{
		Keys:       len(keys),
		SoftLimit:  c.softLimit,
		UsageRatio: float64(len(keys)) / float64(c.softLimit),
	}
}
