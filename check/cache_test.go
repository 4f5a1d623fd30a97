package check

import (
	"testing"
	"time"

	"github.com/twj0/ip-address-purity-checker/store"
)

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(store.NewMemoryStore(), 14, 100)

	want := Result{IP: "1.2.3.4", IsPure: true, RiskScore: 10, Country: "Japan", Provider: "proxycheck"}
	if err := c.Put("1.2.3.4", want); err != nil {
		t.Fatalf("写入缓存失败: %v", err)
	}

	got, ok := c.Get("1.2.3.4")
	if !ok {
		t.Fatal("刚写入的条目应能命中")
	}
	if got.RiskScore != 10 || !got.IsPure || got.Country != "Japan" {
		t.Errorf("缓存读出的结论不符: %+v", got)
	}

	if _, ok := c.Get("9.9.9.9"); ok {
		t.Error("未写入的IP不应命中")
	}
}

func TestCacheExpiry(t *testing.T) {
	kv := store.NewMemoryStore()
	base := time.Now()
	kv.Now = func() time.Time { return base }

	c := NewCache(kv, 14, 100)
	if err := c.Put("1.2.3.4", Result{IP: "1.2.3.4", IsPure: true}); err != nil {
		t.Fatal(err)
	}

	// 13天后仍在有效期内
	kv.Now = func() time.Time { return base.Add(13 * 24 * time.Hour) }
	if _, ok := c.Get("1.2.3.4"); !ok {
		t.Error("14天TTL内的条目应命中")
	}

	// 15天后过期
	kv.Now = func() time.Time { return base.Add(15 * 24 * time.Hour) }
	if _, ok := c.Get("1.2.3.4"); ok {
		t.Error("超过TTL的条目不应命中")
	}
}

func TestCacheTTLClamp(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 14},
		{3, 7},
		{14, 14},
		{90, 30},
	}
	for _, tc := range cases {
		c := NewCache(store.NewMemoryStore(), tc.in, 100)
		if c.ttlDays != tc.want {
			t.Errorf("ttlDays=%d 应收紧为 %d，实际 %d", tc.in, tc.want, c.ttlDays)
		}
	}
}

func TestCacheErrorTTLShorter(t *testing.T) {
	kv := store.NewMemoryStore()
	base := time.Now()
	kv.Now = func() time.Time { return base }

	c := NewCache(kv, 14, 100)
	fallback := Result{IP: "1.2.3.4", IsPure: false, RiskScore: 100, Provider: "fallback"}
	if err := c.PutError("1.2.3.4", fallback); err != nil {
		t.Fatal(err)
	}

	kv.Now = func() time.Time { return base.Add(12 * time.Hour) }
	if _, ok := c.Get("1.2.3.4"); !ok {
		t.Error("兜底结论应缓存24小时，12小时内应命中")
	}

	kv.Now = func() time.Time { return base.Add(25 * time.Hour) }
	if _, ok := c.Get("1.2.3.4"); ok {
		t.Error("兜底结论超过24小时后不应命中")
	}
}

func TestCacheClearAndStats(t *testing.T) {
	c := NewCache(store.NewMemoryStore(), 14, 10)
	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		if err := c.Put(ip, Result{IP: ip}); err != nil {
			t.Fatal(err)
		}
	}

	stats := c.Stats()
	if stats.Keys != 3 {
		t.Errorf("缓存键数应为3，实际 %d", stats.Keys)
	}
	if stats.UsageRatio != 0.3 {
		t.Errorf("占用率应为0.3，实际 %f", stats.UsageRatio)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("清空缓存失败: %v", err)
	}
	if n != 3 {
		t.Errorf("应清除3条，实际 %d", n)
	}
	if c.Stats().Keys != 0 {
		t.Error("清空后不应再有缓存键")
	}
}
