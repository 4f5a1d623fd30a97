// Package save 渲染并保存过滤后的路由配置
package save

import (
	"fmt"
	"time"

	"github.com/biter777/countries"
	"github.com/goccy/go-yaml"
	"github.com/twj0/ip-address-purity-checker/check"
	proxies "github.com/twj0/ip-address-purity-checker/proxy"
)

const (
	groupSelect      = "🚀 节点选择"
	groupAuto        = "♻️ 自动选择"
	groupFallback    = "🔯 故障转移"
	groupLoadBalance = "⚖️ 负载均衡"
	groupDirect      = "🎯 全球直连"

	autoGroupCap        = 50
	fallbackGroupCap    = 30
	loadBalanceGroupCap = 20
	countryGroupCap     = 10
)

// ProxyGroup clash配置里的策略组
type ProxyGroup struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Proxies  []string `yaml:"proxies"`
	URL      string   `yaml:"url,omitempty"`
	Interval int      `yaml:"interval,omitempty"`
	Strategy string   `yaml:"strategy,omitempty"`
}

// Meta 配置文件尾部的生成信息
type Meta struct {
	GeneratedAt string `yaml:"generated_at"`
	TotalNodes  int    `yaml:"total_nodes"`
	PureNodes   int    `yaml:"pure_nodes"`
	Countries   int    `yaml:"countries"`
}

// ClashConfig 完整的clash配置文档。
// 全程走结构体和yaml序列化，不做字符串模板拼接，
// 保证空结果时也输出结构合法的配置。
type ClashConfig struct {
	Port        int              `yaml:"port"`
	SocksPort   int              `yaml:"socks-port"`
	AllowLan    bool             `yaml:"allow-lan"`
	Mode        string           `yaml:"mode"`
	LogLevel    string           `yaml:"log-level"`
	Proxies     []map[string]any `yaml:"proxies"`
	ProxyGroups []ProxyGroup     `yaml:"proxy-groups"`
	Rules       []string         `yaml:"rules"`
	Meta        Meta             `yaml:"_meta"`
}

// BuildRankedConfig 把排好序的纯净IP报告合成为clash配置。
// 节点按国家编号命名：<国旗> <国家>-<序号>；每个国家生成一个url-test分组，
// 主选择组引用国家组而不是散的节点名；maxNodes限制总节点数。
func BuildRankedConfig(reports []check.Report, maxNodes int) *ClashConfig {
	proxyList := make([]map[string]any, 0, len(reports))
	names := make([]string, 0, len(reports))
	countryCounter := make(map[string]int)
	countryNodes := make(map[string][]string)
	countryOrder := make([]string, 0)

	for _, rep := range reports {
		country := rep.Result.Country
		if country == "" {
			country = "Unknown"
		}
		if _, seen := countryNodes[country]; !seen {
			countryOrder = append(countryOrder, country)
			countryNodes[country] = nil
		}

		for _, node := range rep.Candidate.Nodes {
			if maxNodes > 0 && len(proxyList) >= maxNodes {
				break
			}
			countryCounter[country]++
			name := fmt.Sprintf("%s %s-%d", countryFlag(country), country, countryCounter[country])
			proxyList = append(proxyList, nodeToProxy(name, node))
			names = append(names, name)
			countryNodes[country] = append(countryNodes[country], name)
		}
	}

	// 国家子分组：组内节点数有单独上限，组名供主选择组引用
	countryGroups := make([]ProxyGroup, 0, len(countryOrder))
	countryGroupNames := make([]string, 0, len(countryOrder))
	for _, country := range countryOrder {
		members := countryNodes[country]
		if len(members) == 0 {
			continue
		}
		if len(members) > countryGroupCap {
			members = members[:countryGroupCap]
		}
		groupName := fmt.Sprintf("%s %s", countryFlag(country), country)
		countryGroupNames = append(countryGroupNames, groupName)
		countryGroups = append(countryGroups, ProxyGroup{
			Name:     groupName,
			Type:     "url-test",
			Proxies:  members,
			URL:      "http://www.gstatic.com/generate_204",
			Interval: 300,
		})
	}

	cfg := &ClashConfig{
		Port:      7890,
		SocksPort: 7891,
		AllowLan:  false,
		Mode:      "rule",
		LogLevel:  "info",
		Proxies:   proxyList,
		Rules: []string{
			"DOMAIN-SUFFIX,local,DIRECT",
			"IP-CIDR,127.0.0.0/8,DIRECT",
			"IP-CIDR,10.0.0.0/8,DIRECT",
			"IP-CIDR,172.16.0.0/12,DIRECT",
			"IP-CIDR,192.168.0.0/16,DIRECT",
			"GEOIP,CN,DIRECT",
			"MATCH," + groupSelect,
		},
		Meta: Meta{
			GeneratedAt: time.Now().Format(time.RFC3339),
			TotalNodes:  len(proxyList),
			PureNodes:   len(reports),
			Countries:   len(countryNodes),
		},
	}

	cfg.ProxyGroups = []ProxyGroup{
		{
			Name:    groupSelect,
			Type:    "select",
			Proxies: append([]string{groupAuto, groupFallback, groupLoadBalance, "DIRECT"}, countryGroupNames...),
		},
		{
			Name:     groupAuto,
			Type:     "url-test",
			Proxies:  capNames(names, autoGroupCap),
			URL:      "http://www.gstatic.com/generate_204",
			Interval: 300,
		},
		{
			Name:     groupFallback,
			Type:     "fallback",
			Proxies:  capNames(names, fallbackGroupCap),
			URL:      "http://www.gstatic.com/generate_204",
			Interval: 300,
		},
		{
			Name:     groupLoadBalance,
			Type:     "load-balance",
			Proxies:  capNames(names, loadBalanceGroupCap),
			URL:      "http://www.gstatic.com/generate_204",
			Interval: 300,
			Strategy: "consistent-hashing",
		},
		{
			Name:    groupDirect,
			Type:    "select",
			Proxies: []string{"DIRECT"},
		},
	}
	cfg.ProxyGroups = append(cfg.ProxyGroups, countryGroups...)

	return cfg
}

// Render 序列化为yaml
func (c *ClashConfig) Render() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("序列化clash配置失败: %w", err)
	}
	return data, nil
}

// capNames 截断成员列表；没有任何节点时退化为DIRECT，保证组结构合法
func capNames(names []string, limit int) []string {
	if len(names) == 0 {
		return []string{"DIRECT"}
	}
	if len(names) > limit {
		names = names[:limit]
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// nodeToProxy 按协议类型生成clash的proxy条目；
// 直连和未知协议的IP降级为http条目占位
func nodeToProxy(name string, node proxies.Node) map[string]any {
	entry := map[string]any{
		"name":   name,
		"server": node.Server,
		"port":   node.Port,
	}

	switch node.Kind {
	case proxies.KindVMess:
		entry["type"] = "vmess"
		entry["uuid"] = node.UUID
		entry["alterId"] = node.AlterID
		entry["cipher"] = defaultStr(node.Cipher, "auto")
		entry["network"] = defaultStr(node.Network, "tcp")
	case proxies.KindVLess:
		entry["type"] = "vless"
		entry["uuid"] = node.UUID
		if node.Flow != "" {
			entry["flow"] = node.Flow
		}
		if node.Network != "" {
			entry["network"] = node.Network
		}
	case proxies.KindTrojan:
		entry["type"] = "trojan"
		entry["password"] = node.Password
	case proxies.KindSS:
		entry["type"] = "ss"
		entry["cipher"] = defaultStr(node.Cipher, "aes-256-gcm")
		entry["password"] = node.Password
	default:
		entry["type"] = "http"
	}
	return entry
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// countryFlag 国家名转国旗emoji，查不到用白旗占位
func countryFlag(name string) string {
	if name == "Unknown" {
		return "🏳️"
	}
	c := countries.ByName(name)
	if c == countries.Unknown {
		return "🏳️"
	}
	return c.Emoji()
}
