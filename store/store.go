// Package store 提供带TTL的通用键值存储
package store

import (
	"errors"
	"time"
)

// ErrCorrupt 表示条目无法解析，调用方应视作不存在并删除
var ErrCorrupt = errors.New("store: corrupt entry")

// Store 键值存储接口。ttl为0表示永不过期。
type Store interface {
	Get(key string) (string, bool, error)
	Put(key, value string, ttl time.Duration) error
	Delete(key string) error
	List(prefix string, limit int) ([]string, error)
}

// envelope 持久化条目，过期时间戳写在值里
type envelope struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix秒，0为永不过期
}

func (e *envelope) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && now.Unix() >= e.ExpiresAt
}
