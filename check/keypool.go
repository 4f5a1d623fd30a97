package check

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/twj0/ip-address-purity-checker/store"
)

const credentialPoolsKey = "credential_pools"

// CredentialStatus 密钥状态
type CredentialStatus string

const (
	CredActive CredentialStatus = "active"
	CredError  CredentialStatus = "error"
)

// Credential 单个API密钥及其用量状态
type Credential struct {
	Key        string           `json:"key"`
	IsActive   bool             `json:"isActive"`
	Status     CredentialStatus `json:"status"`
	Used       int              `json:"used"`
	Remaining  int              `json:"remaining"`
	LastUsedAt time.Time        `json:"lastUsedAt"`
}

// usable 只有启用且状态正常的密钥参与轮换
func (c *Credential) usable() bool {
	return c.IsActive && c.Status == CredActive
}

type credentialPool struct {
	Credentials []*Credential `json:"credentials"`
	NextIndex   int           `json:"nextIndex"`
}

// CredentialStore 按提供商管理密钥池并按配置策略轮换。
// 不是全局单例：由调用方构造并注入，便于测试替换。
// 所有状态变更都在同一把锁内完成。
type CredentialStore struct {
	mu       sync.Mutex
	pools    map[string]*credentialPool
	strategy string
	kv       store.Store
}

// NewCredentialStore 构造密钥池管理器，strategy 取 round-robin / failover / random
func NewCredentialStore(kv store.Store, strategy string) *CredentialStore {
	if strategy == "" {
		strategy = "round-robin"
	}
	return &CredentialStore{
		pools:    make(map[string]*credentialPool),
		strategy: strategy,
		kv:       kv,
	}
}

// SetKeys 用配置里的密钥列表刷新某个提供商的池。
// 已存在的密钥保留其用量与状态，配置中删除的密钥一并移除。
func (s *CredentialStore) SetKeys(provider string, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.pools[provider]
	if pool == nil {
		pool = &credentialPool{}
		s.pools[provider] = pool
	}

	existing := lo.SliceToMap(pool.Credentials, func(c *Credential) (string, *Credential) {
		return c.Key, c
	})

	creds := make([]*Credential, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if old, ok := existing[k]; ok {
			creds = append(creds, old)
			continue
		}
		creds = append(creds, &Credential{
			Key:       k,
			IsActive:  true,
			Status:    CredActive,
			Remaining: -1, // 未知额度
		})
	}
	pool.Credentials = creds
	if pool.NextIndex >= len(creds) {
		pool.NextIndex = 0
	}
}

// Next 按轮换策略取下一个可用密钥，池为空或全部不可用时返回nil。
// 返回前会盖上LastUsedAt时间戳。
func (s *CredentialStore) Next(provider string) *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.pools[provider]
	if pool == nil {
		return nil
	}
	active := lo.Filter(pool.Credentials, func(c *Credential, _ int) bool {
		return c.usable()
	})
	if len(active) == 0 {
		return nil
	}

	var cred *Credential
	switch s.strategy {
	case "failover":
		cred = active[0]
	case "random":
		cred = active[rand.Intn(len(active))]
	default: // round-robin
		cred = active[pool.NextIndex%len(active)]
		pool.NextIndex = (pool.NextIndex + 1) % len(active)
	}

	cred.LastUsedAt = time.Now()
	return cred
}

// MarkSuccess 记一次成功调用：累计用量，剩余额度减一（不小于0）
func (s *CredentialStore) MarkSuccess(provider, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred := s.find(provider, key); cred != nil {
		cred.Used++
		if cred.Remaining > 0 {
			cred.Remaining--
		}
	}
}

// MarkQuota 密钥额度耗尽或被限流，置为错误状态并清零剩余额度
func (s *CredentialStore) MarkQuota(provider, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred := s.find(provider, key); cred != nil {
		cred.Status = CredError
		cred.Remaining = 0
		slog.Warn(fmt.Sprintf("提供商 %s 的密钥额度耗尽，已禁用: %s", provider, maskKey(key)))
	}
}

func (s *CredentialStore) find(provider, key string) *Credential {
	pool := s.pools[provider]
	if pool == nil {
		return nil
	}
	for _, c := range pool.Credentials {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// Snapshot 导出全部池的拷贝，备份与状态接口使用
func (s *CredentialStore) Snapshot() map[string][]Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]Credential, len(s.pools))
	for provider, pool := range s.pools {
		creds := make([]Credential, 0, len(pool.Credentials))
		for _, c := range pool.Credentials {
			creds = append(creds, *c)
		}
		out[provider] = creds
	}
	return out
}

// Load 从KV存储恢复上次运行的密钥用量与轮换位置
func (s *CredentialStore) Load() error {
	raw, ok, err := s.kv.Get(credentialPoolsKey)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pools := make(map[string]*credentialPool)
	if err := json.Unmarshal([]byte(raw), &pools); err != nil {
		return fmt.Errorf("解析密钥池数据失败: %w", err)
	}
	s.pools = pools
	return nil
}

// Save 把密钥池持久化到KV存储
func (s *CredentialStore) Save() error {
	s.mu.Lock()
	data, err := json.Marshal(s.pools)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("序列化密钥池失败: %w", err)
	}
	return s.kv.Put(credentialPoolsKey, string(data), 0)
}

// maskKey 日志里只露出密钥前后各2位
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-2:]
}
