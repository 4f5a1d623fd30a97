package check

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/store"
)

// newTestClient 把三个提供商指向本地httptest服务
func newTestClient(t *testing.T, aHandler, bHandler, cHandler http.HandlerFunc) (*Client, *CredentialStore) {
	t.Helper()

	a := httptest.NewServer(aHandler)
	b := httptest.NewServer(bHandler)
	c := httptest.NewServer(cHandler)
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)
	t.Cleanup(c.Close)

	oldA, oldB, oldC := config.GlobalConfig.ProxyCheck, config.GlobalConfig.IPInfo, config.GlobalConfig.IPAPI
	oldRPS := config.GlobalConfig.ProviderRPS
	config.GlobalConfig.ProxyCheck.BaseURL = a.URL
	config.GlobalConfig.IPInfo.BaseURL = b.URL
	config.GlobalConfig.IPAPI.BaseURL = c.URL
	config.GlobalConfig.ProviderRPS = 1000
	t.Cleanup(func() {
		config.GlobalConfig.ProxyCheck = oldA
		config.GlobalConfig.IPInfo = oldB
		config.GlobalConfig.IPAPI = oldC
		config.GlobalConfig.ProviderRPS = oldRPS
	})

	creds := NewCredentialStore(store.NewMemoryStore(), "round-robin")
	creds.SetKeys("proxycheck", []string{"pk1"})
	creds.SetKeys("ipinfo", []string{"tok1"})

	cache := NewCache(store.NewMemoryStore(), 14, 100)
	return NewClient(cache, creds, NewGeoResolver("")), creds
}

func TestProxyCheckSuccess(t *testing.T) {
	client, _ := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"ok","1.2.3.4":{"proxy":"no","risk":"12","country":"Japan","provider":"NTT","asn":"AS4713"}}`)
		},
		func(w http.ResponseWriter, r *http.Request) { t.Error("首选提供商成功时不应落到ipinfo") },
		func(w http.ResponseWriter, r *http.Request) { t.Error("首选提供商成功时不应落到ip-api") },
	)

	res := client.Check(context.Background(), "1.2.3.4")
	if !res.IsPure || res.RiskScore != 12 || res.Provider != "proxycheck" {
		t.Errorf("proxycheck结论不符: %+v", res)
	}
	if res.Country != "Japan" {
		t.Errorf("国家应为Japan，实际 %s", res.Country)
	}
	if res.ASN != "AS4713" {
		t.Errorf("应记录ASN，实际 %q", res.ASN)
	}
}

func TestFailoverToIPInfo(t *testing.T) {
	client, _ := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok1" {
				t.Errorf("ipinfo应使用Bearer认证，实际: %s", got)
			}
			fmt.Fprint(w, `{"country":"DE","org":"Example Org","privacy":{"vpn":true}}`)
		},
		func(w http.ResponseWriter, r *http.Request) { t.Error("ipinfo成功时不应落到ip-api") },
	)

	res := client.Check(context.Background(), "5.6.7.8")
	if res.IsPure {
		t.Error("privacy.vpn=true时应判为不纯净")
	}
	if res.RiskScore != 60 || res.Provider != "ipinfo" {
		t.Errorf("ipinfo结论不符: %+v", res)
	}
}

func TestIPInfoOrgHeuristic(t *testing.T) {
	client, _ := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		func(w http.ResponseWriter, r *http.Request) {
			// 无privacy对象，org含机房关键词
			fmt.Fprint(w, `{"country":"US","org":"AS1 Super Hosting Inc"}`)
		},
		func(w http.ResponseWriter, r *http.Request) { t.Error("不应落到ip-api") },
	)

	res := client.Check(context.Background(), "5.6.7.8")
	if res.IsPure || res.RiskScore != 80 {
		t.Errorf("org含hosting关键词应判为高风险: %+v", res)
	}
}

func TestIPAPIBlacklist(t *testing.T) {
	client, _ := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"success","country":"United States","isp":"Amazon Technologies","org":"AWS EC2","as":"AS16509","proxy":false,"hosting":false}`)
		},
	)

	res := client.Check(context.Background(), "3.3.3.3")
	if res.IsPure {
		t.Error("ISP命中黑名单时应判为不纯净")
	}
	if res.Provider != "ip-api" {
		t.Errorf("应由ip-api给出结论，实际: %s", res.Provider)
	}
}

func TestChainExhaustionFallback(t *testing.T) {
	var calls atomic.Int32
	fail := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}
	client, _ := newTestClient(t, fail, fail, fail)

	res := client.Check(context.Background(), "7.7.7.7")
	if res.IsPure || res.RiskScore != 100 || res.Provider != "fallback" || res.Country != "Unknown" {
		t.Errorf("链路全失败应返回保守兜底结论: %+v", res)
	}

	// 兜底结论也写入缓存，第二次查询不应再发请求
	before := calls.Load()
	res2 := client.Check(context.Background(), "7.7.7.7")
	if calls.Load() != before {
		t.Error("兜底结论缓存后不应再发外部请求")
	}
	if res2.Provider != "fallback" {
		t.Errorf("缓存命中应返回兜底结论: %+v", res2)
	}
}

func TestQuotaRotation(t *testing.T) {
	client, creds := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"country":"NL","privacy":{}}`)
		},
		func(w http.ResponseWriter, r *http.Request) { t.Error("不应落到ip-api") },
	)

	res := client.Check(context.Background(), "8.8.8.8")
	if !res.IsPure || res.Provider != "ipinfo" {
		t.Errorf("429后应切到下个提供商: %+v", res)
	}

	// 429应把proxycheck的密钥标记为失效
	if cred := creds.Next("proxycheck"); cred != nil {
		t.Errorf("额度耗尽的密钥应被禁用，实际仍可取出: %+v", cred)
	}
}

func TestCacheHitSkipsProviders(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			fmt.Fprint(w, `{"status":"ok","1.2.3.4":{"proxy":"no","risk":5,"country":"Japan"}}`)
		},
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	first := client.Check(context.Background(), "1.2.3.4")
	second := client.Check(context.Background(), "1.2.3.4")

	if calls.Load() != 1 {
		t.Errorf("第二次查询应命中缓存，外部请求应为1次，实际 %d 次", calls.Load())
	}
	// 回放的结论要能和实时查询区分开
	if first.CacheHit {
		t.Error("首次查询不应标记为缓存命中")
	}
	if !second.CacheHit {
		t.Error("第二次查询应标记为缓存命中")
	}
}
