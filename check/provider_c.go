package check

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// IPAPIProvider 查询 ip-api.com 风格的免费接口，无需密钥。
// 兜底数据源：除了接口自带的proxy/hosting标记，还对ISP/组织名
// 做一轮机房关键词黑名单匹配。
type IPAPIProvider struct {
	baseURL string
	client  *http.Client
}

func NewIPAPIProvider(baseURL string, client *http.Client) *IPAPIProvider {
	return &IPAPIProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *IPAPIProvider) Name() string   { return "ip-api" }
func (p *IPAPIProvider) NeedsKey() bool { return false }

type ipAPIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
	Org     string `json:"org"`
	AS      string `json:"as"`
	Proxy   bool   `json:"proxy"`
	Hosting bool   `json:"hosting"`
}

// 机房与云厂商黑名单，命中即判为不纯净
var datacenterBlacklist = []string{
	"amazon", "aws", "google", "gcp", "microsoft", "azure",
	"cloudflare", "akamai", "fastly", "digitalocean", "vultr",
	"linode", "hetzner", "ovh", "datacenter", "hosting",
	"server", "cloud", "vps", "dedicated",
}

func (p *IPAPIProvider) Check(ctx context.Context, ip, _ string) (Result, error) {
	url := fmt.Sprintf("%s/json/%s?fields=status,message,country,city,isp,org,as,proxy,hosting", p.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ip-api请求失败: %w", err)
	}
	defer resp.Body.Close()

	if isQuotaStatus(resp.StatusCode) {
		return Result{}, ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ip-api状态码: %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("ip-api响应解析失败: %w", err)
	}
	if body.Status != "success" {
		return Result{}, fmt.Errorf("ip-api查询失败: %s", body.Message)
	}

	haystack := strings.ToLower(body.ISP + " " + body.Org + " " + body.AS)
	blacklisted := lo.SomeBy(datacenterBlacklist, func(kw string) bool {
		return strings.Contains(haystack, kw)
	})

	risk := 0
	switch {
	case body.Hosting:
		risk = 70
	case body.Proxy:
		risk = 50
	}

	return Result{
		IsPure:    !body.Hosting && !body.Proxy && !blacklisted,
		RiskScore: risk,
		Country:   body.Country,
		City:      body.City,
		ISP:       body.ISP,
		ASN:       body.AS,
		Provider:  p.Name(),
	}, nil
}
