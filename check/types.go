package check

import (
	"sync/atomic"
	"time"

	proxies "github.com/twj0/ip-address-purity-checker/proxy"
)

// Result 一次IP信誉查询的结论
type Result struct {
	IP        string    `json:"ip"`
	IsPure    bool      `json:"isPure"`
	RiskScore int       `json:"riskScore"`
	Country   string    `json:"country"`
	City      string    `json:"city,omitempty"`
	ISP       string    `json:"isp,omitempty"`
	ASN       string    `json:"asn,omitempty"`
	Provider  string    `json:"provider"`
	CheckedAt time.Time `json:"checkedAt"`
	// CacheHit 缓存回放时置true；写缓存时总是false，不会带着旧标记落盘
	CacheHit bool `json:"cacheHit,omitempty"`
}

// Report 把检测结论和该IP背后的节点绑定在一起，供后续排序与出配置使用
type Report struct {
	Candidate proxies.IPCandidate
	Result    Result
}

// 检测进度计数，HTTP接口轮询展示用
var (
	Progress   atomic.Int32
	TotalCount atomic.Int32
	ForceClose atomic.Bool
)
