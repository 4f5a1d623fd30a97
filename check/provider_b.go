package check

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// IPInfoProvider 查询 ipinfo.io 风格的接口，Bearer令牌认证。
// 优先使用privacy对象判定；响应没带privacy时退化为org关键词启发式。
type IPInfoProvider struct {
	baseURL string
	client  *http.Client
}

func NewIPInfoProvider(baseURL string, client *http.Client) *IPInfoProvider {
	return &IPInfoProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *IPInfoProvider) Name() string   { return "ipinfo" }
func (p *IPInfoProvider) NeedsKey() bool { return true }

type ipInfoPrivacy struct {
	Hosting bool `json:"hosting"`
	VPN     bool `json:"vpn"`
	Proxy   bool `json:"proxy"`
	Tor     bool `json:"tor"`
}

type ipInfoResponse struct {
	Country string         `json:"country"`
	City    string         `json:"city"`
	Org     string         `json:"org"`
	Privacy *ipInfoPrivacy `json:"privacy"`
}

// org字段出现这些词基本可以断定是机房IP
var hostingKeywords = []string{"hosting", "cloud", "server", "datacenter", "vps"}

func (p *IPInfoProvider) Check(ctx context.Context, ip, key string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/%s", p.baseURL, ip), nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ipinfo请求失败: %w", err)
	}
	defer resp.Body.Close()

	if isQuotaStatus(resp.StatusCode) {
		return Result{}, ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ipinfo状态码: %d", resp.StatusCode)
	}

	var body ipInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("ipinfo响应解析失败: %w", err)
	}

	res := Result{
		Country:  body.Country,
		City:     body.City,
		ISP:      body.Org,
		Provider: p.Name(),
	}

	if priv := body.Privacy; priv != nil {
		flagged := priv.Hosting || priv.VPN || priv.Proxy || priv.Tor
		res.IsPure = !flagged
		switch {
		case priv.Hosting:
			res.RiskScore = 80
		case priv.VPN, priv.Proxy, priv.Tor:
			res.RiskScore = 60
		default:
			res.RiskScore = 0
		}
		return res, nil
	}

	// 免费档没有privacy数据，按org关键词粗判
	org := strings.ToLower(body.Org)
	hit := lo.SomeBy(hostingKeywords, func(kw string) bool {
		return strings.Contains(org, kw)
	})
	if hit {
		res.IsPure = false
		res.RiskScore = 80
	} else {
		res.IsPure = true
		res.RiskScore = 20
	}
	return res, nil
}
