package store

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore 把每个键保存为数据目录下的一个JSON文件
type FileStore struct {
	dir string
}

// NewFileStore 创建文件存储，目录不存在时自动创建
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("数据目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// 键名转义为安全文件名，保留常见字符以便肉眼排查
func encodeKey(key string) string {
	return url.PathEscape(key) + ".json"
}

func decodeKey(name string) (string, bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
	if err != nil {
		return "", false
	}
	return key, true
}

func (fs *FileStore) path(key string) string {
	return filepath.Join(fs.dir, encodeKey(key))
}

func (fs *FileStore) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(fs.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("读取键 %s 失败: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// 损坏的条目直接清理
		_ = os.Remove(fs.path(key))
		return "", false, ErrCorrupt
	}
	if env.expired(time.Now()) {
		_ = os.Remove(fs.path(key))
		return "", false, nil
	}
	return env.Value, true, nil
}

func (fs *FileStore) Put(key, value string, ttl time.Duration) error {
	// ttl为负时写入的是已过期条目，Get时走懒删除
	env := envelope{Value: value}
	if ttl != 0 {
		env.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("序列化键 %s 失败: %w", key, err)
	}

	// 先写临时文件再改名，避免写一半被读到
	tmp := fs.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入键 %s 失败: %w", key, err)
	}
	if err := os.Rename(tmp, fs.path(key)); err != nil {
		return fmt.Errorf("替换键 %s 失败: %w", key, err)
	}
	return nil
}

func (fs *FileStore) Delete(key string) error {
	if err := os.Remove(fs.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除键 %s 失败: %w", key, err)
	}
	return nil
}

func (fs *FileStore) List(prefix string, limit int) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("读取数据目录失败: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := decodeKey(e.Name())
		if !ok {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}
