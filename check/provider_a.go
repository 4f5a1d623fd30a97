package check

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ProxyCheckProvider 查询 proxycheck.io 风格的接口。
// 响应以IP为键：{"status":"ok","1.2.3.4":{"proxy":"yes","risk":66,...}}
type ProxyCheckProvider struct {
	baseURL string
	client  *http.Client
}

func NewProxyCheckProvider(baseURL string, client *http.Client) *ProxyCheckProvider {
	return &ProxyCheckProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *ProxyCheckProvider) Name() string   { return "proxycheck" }
func (p *ProxyCheckProvider) NeedsKey() bool { return true }

type proxyCheckEntry struct {
	Proxy   string          `json:"proxy"`
	Type    string          `json:"type"`
	Risk    json.RawMessage `json:"risk"`
	Country string          `json:"country"`
	City    string          `json:"city"`
	ISP     string          `json:"provider"`
	ASN     string          `json:"asn"`
}

func (p *ProxyCheckProvider) Check(ctx context.Context, ip, key string) (Result, error) {
	url := fmt.Sprintf("%s/v2/%s?vpn=1&risk=1&asn=1&key=%s", p.baseURL, ip, key)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("proxycheck请求失败: %w", err)
	}
	defer resp.Body.Close()

	if isQuotaStatus(resp.StatusCode) {
		return Result{}, ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("proxycheck状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	// 顶层是动态键，先整体解为map再取IP对应的对象
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("proxycheck响应解析失败: %w", err)
	}

	if st, ok := raw["status"]; ok {
		var status string
		_ = json.Unmarshal(st, &status)
		if status == "denied" || status == "error" {
			var msg string
			if m, ok := raw["message"]; ok {
				_ = json.Unmarshal(m, &msg)
			}
			if strings.Contains(strings.ToLower(msg), "quota") || strings.Contains(strings.ToLower(msg), "limit") {
				return Result{}, ErrQuotaExceeded
			}
			return Result{}, fmt.Errorf("proxycheck拒绝请求: %s", msg)
		}
	}

	entryRaw, ok := raw[ip]
	if !ok {
		return Result{}, fmt.Errorf("proxycheck响应缺少IP %s 的数据", ip)
	}
	var entry proxyCheckEntry
	if err := json.Unmarshal(entryRaw, &entry); err != nil {
		return Result{}, fmt.Errorf("proxycheck条目解析失败: %w", err)
	}

	risk := parseRisk(entry.Risk)
	isProxy := entry.Proxy == "yes"

	return Result{
		IsPure:    !isProxy && risk < 60,
		RiskScore: risk,
		Country:   entry.Country,
		City:      entry.City,
		ISP:       entry.ISP,
		ASN:       entry.ASN,
		Provider:  p.Name(),
	}, nil
}

// parseRisk risk字段数字和字符串两种形态都有，统一转int
func parseRisk(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return 0
}
