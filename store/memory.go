package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore 内存实现，主要用于测试
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]envelope

	// Now 可注入的时钟，便于测试TTL
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]envelope),
		Now:  time.Now,
	}
}

func (ms *MemoryStore) Get(key string) (string, bool, error) {
	ms.mu.RLock()
	env, ok := ms.data[key]
	ms.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if env.expired(ms.Now()) {
		ms.mu.Lock()
		delete(ms.data, key)
		ms.mu.Unlock()
		return "", false, nil
	}
	return env.Value, true, nil
}

func (ms *MemoryStore) Put(key, value string, ttl time.Duration) error {
	env := envelope{Value: value}
	if ttl != 0 {
		env.ExpiresAt = ms.Now().Add(ttl).Unix()
	}
	ms.mu.Lock()
	ms.data[key] = env
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStore) Delete(key string) error {
	ms.mu.Lock()
	delete(ms.data, key)
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStore) List(prefix string, limit int) ([]string, error) {
	ms.mu.RLock()
	keys := make([]string, 0, len(ms.data))
	for k := range ms.data {
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
	}
	ms.mu.RUnlock()

	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}
