package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	if err := fs.Put("ip_cache_1.2.3.4", `{"ip":"1.2.3.4"}`, 0); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	val, ok, err := fs.Get("ip_cache_1.2.3.4")
	if err != nil || !ok {
		t.Fatalf("读取失败: ok=%v err=%v", ok, err)
	}
	if val != `{"ip":"1.2.3.4"}` {
		t.Errorf("读取值不一致: %s", val)
	}

	if err := fs.Delete("ip_cache_1.2.3.4"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, ok, _ := fs.Get("ip_cache_1.2.3.4"); ok {
		t.Error("删除后仍能读取")
	}
}

func TestFileStoreExpiry(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	// 过期时间戳直接写为过去，模拟TTL已过
	if err := fs.Put("k", "v", -time.Hour); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, ok, _ := fs.Get("k"); ok {
		t.Error("过期条目不应命中")
	}
	// 懒删除应已清理文件
	if _, err := os.Stat(filepath.Join(fs.dir, encodeKey("k"))); !os.IsNotExist(err) {
		t.Error("过期条目未被懒删除")
	}
}

func TestFileStoreCorruptEntry(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(fs.dir, encodeKey("bad")), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := fs.Get("bad"); err != ErrCorrupt {
		t.Errorf("损坏条目应返回 ErrCorrupt, 实际: %v", err)
	}
	// 损坏条目应被清理
	if _, err := os.Stat(filepath.Join(fs.dir, encodeKey("bad"))); !os.IsNotExist(err) {
		t.Error("损坏条目未被清理")
	}
}

func TestFileStoreListPrefix(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	for _, k := range []string{"ip_cache_1.1.1.1", "ip_cache_2.2.2.2", "subscriptions"} {
		if err := fs.Put(k, "v", 0); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := fs.List("ip_cache_", 0)
	if err != nil {
		t.Fatalf("列举失败: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("前缀列举数量错误: %v", keys)
	}

	keys, err = fs.List("", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("limit未生效: %v", keys)
	}
}

func TestMemoryStoreTTLClock(t *testing.T) {
	ms := NewMemoryStore()
	now := time.Now()
	ms.Now = func() time.Time { return now }

	if err := ms.Put("k", "v", 14*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := ms.Get("k"); !ok {
		t.Fatal("写入后应立即命中")
	}

	// 模拟时钟前进超过TTL
	now = now.Add(15 * 24 * time.Hour)
	if _, ok, _ := ms.Get("k"); ok {
		t.Error("TTL过后应返回未命中")
	}
}

func TestMemoryStoreNegativeTTL(t *testing.T) {
	ms := NewMemoryStore()
	if err := ms.Put("k", "v", -time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := ms.Get("k"); ok {
		t.Error("负TTL写入的条目不应命中")
	}
}
