package check

import (
	"testing"

	"github.com/twj0/ip-address-purity-checker/store"
)

func newTestPool(strategy string, keys ...string) *CredentialStore {
	s := NewCredentialStore(store.NewMemoryStore(), strategy)
	s.SetKeys("proxycheck", keys)
	return s
}

func TestRoundRobinFairness(t *testing.T) {
	s := newTestPool("round-robin", "k1", "k2", "k3")

	counts := map[string]int{}
	for i := 0; i < 9; i++ {
		cred := s.Next("proxycheck")
		if cred == nil {
			t.Fatal("密钥池非空时不应返回nil")
		}
		counts[cred.Key]++
		if cred.LastUsedAt.IsZero() {
			t.Error("Next应更新LastUsedAt")
		}
	}

	for _, k := range []string{"k1", "k2", "k3"} {
		if counts[k] != 3 {
			t.Errorf("轮询9次后密钥 %s 应被使用3次，实际 %d 次", k, counts[k])
		}
	}
}

func TestFailoverAlwaysFirst(t *testing.T) {
	s := newTestPool("failover", "k1", "k2")
	for i := 0; i < 5; i++ {
		if cred := s.Next("proxycheck"); cred.Key != "k1" {
			t.Fatalf("failover策略应始终返回首个可用密钥，实际: %s", cred.Key)
		}
	}

	// 首个密钥失效后切换到下一个
	s.MarkQuota("proxycheck", "k1")
	if cred := s.Next("proxycheck"); cred.Key != "k2" {
		t.Errorf("k1失效后应返回k2，实际: %s", cred.Key)
	}
}

func TestQuotaExcludesCredential(t *testing.T) {
	s := newTestPool("round-robin", "k1")
	s.MarkQuota("proxycheck", "k1")

	if cred := s.Next("proxycheck"); cred != nil {
		t.Errorf("全部密钥失效时应返回nil，实际: %+v", cred)
	}
}

func TestEmptyPoolReturnsNil(t *testing.T) {
	s := NewCredentialStore(store.NewMemoryStore(), "round-robin")
	if cred := s.Next("proxycheck"); cred != nil {
		t.Errorf("未配置密钥时应返回nil，实际: %+v", cred)
	}
}

func TestMarkSuccessAccounting(t *testing.T) {
	s := newTestPool("failover", "k1")
	s.pools["proxycheck"].Credentials[0].Remaining = 1

	s.MarkSuccess("proxycheck", "k1")
	s.MarkSuccess("proxycheck", "k1")

	cred := s.pools["proxycheck"].Credentials[0]
	if cred.Used != 2 {
		t.Errorf("Used应为2，实际 %d", cred.Used)
	}
	if cred.Remaining != 0 {
		t.Errorf("Remaining不应减到负数，实际 %d", cred.Remaining)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	kv := store.NewMemoryStore()
	s := NewCredentialStore(kv, "round-robin")
	s.SetKeys("ipinfo", []string{"t1", "t2"})
	s.MarkSuccess("ipinfo", "t1")

	if err := s.Save(); err != nil {
		t.Fatalf("保存密钥池失败: %v", err)
	}

	restored := NewCredentialStore(kv, "round-robin")
	if err := restored.Load(); err != nil {
		t.Fatalf("加载密钥池失败: %v", err)
	}
	// SetKeys应保留已恢复的用量
	restored.SetKeys("ipinfo", []string{"t1", "t2"})

	if got := restored.pools["ipinfo"].Credentials[0].Used; got != 1 {
		t.Errorf("恢复后t1的用量应为1，实际 %d", got)
	}
}
