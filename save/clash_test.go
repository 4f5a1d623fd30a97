package save

import (
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/twj0/ip-address-purity-checker/check"
	proxies "github.com/twj0/ip-address-purity-checker/proxy"
)

func sampleReports() []check.Report {
	return []check.Report{
		{
			Candidate: proxies.IPCandidate{
				IP: "1.2.3.4",
				Nodes: []proxies.Node{
					{Server: "1.2.3.4", Port: 443, Kind: proxies.KindVMess, UUID: "u1", Cipher: "auto"},
					{Server: "1.2.3.4", Port: 8443, Kind: proxies.KindTrojan, Password: "pw"},
				},
			},
			Result: check.Result{IP: "1.2.3.4", IsPure: true, RiskScore: 5, Country: "Japan"},
		},
		{
			Candidate: proxies.IPCandidate{
				IP: "5.6.7.8",
				Nodes: []proxies.Node{
					{Server: "5.6.7.8", Port: 443, Kind: proxies.KindDirect},
				},
			},
			Result: check.Result{IP: "5.6.7.8", IsPure: true, RiskScore: 10, Country: ""},
		},
	}
}

func TestBuildRankedConfig(t *testing.T) {
	cfg := BuildRankedConfig(sampleReports(), 500)

	if len(cfg.Proxies) != 3 {
		t.Fatalf("应生成3个proxy条目，实际 %d", len(cfg.Proxies))
	}

	// 国家分组编号
	name0, _ := cfg.Proxies[0]["name"].(string)
	name1, _ := cfg.Proxies[1]["name"].(string)
	if !strings.Contains(name0, "Japan-1") || !strings.Contains(name1, "Japan-2") {
		t.Errorf("同国家节点应按序编号: %s / %s", name0, name1)
	}
	// 空国家归入Unknown桶
	name2, _ := cfg.Proxies[2]["name"].(string)
	if !strings.Contains(name2, "Unknown-1") {
		t.Errorf("无国家信息的节点应归入Unknown: %s", name2)
	}

	if cfg.Meta.TotalNodes != 3 || cfg.Meta.PureNodes != 2 || cfg.Meta.Countries != 2 {
		t.Errorf("_meta统计不符: %+v", cfg.Meta)
	}

	// 规则必须以MATCH结尾
	last := cfg.Rules[len(cfg.Rules)-1]
	if last != "MATCH,"+groupSelect {
		t.Errorf("规则应以MATCH收尾，实际: %s", last)
	}
}

func TestBuildRankedConfigGroups(t *testing.T) {
	cfg := BuildRankedConfig(sampleReports(), 500)

	wantGroups := map[string]string{
		groupSelect:      "select",
		groupAuto:        "url-test",
		groupFallback:    "fallback",
		groupLoadBalance: "load-balance",
		groupDirect:      "select",
	}
	// 固定5组之外还有按国家生成的子分组
	if len(cfg.ProxyGroups) != len(wantGroups)+2 {
		t.Fatalf("应有%d个策略组，实际 %d", len(wantGroups)+2, len(cfg.ProxyGroups))
	}
	got := make(map[string]ProxyGroup)
	for _, g := range cfg.ProxyGroups {
		got[g.Name] = g
		if len(g.Proxies) == 0 {
			t.Errorf("组 %s 成员不应为空", g.Name)
		}
	}
	for name, typ := range wantGroups {
		g, ok := got[name]
		if !ok {
			t.Errorf("缺少策略组 %s", name)
			continue
		}
		if g.Type != typ {
			t.Errorf("组 %s 类型应为 %s，实际 %s", name, typ, g.Type)
		}
	}
}

func TestBuildRankedConfigCountryGroups(t *testing.T) {
	cfg := BuildRankedConfig(sampleReports(), 500)

	groups := make(map[string]ProxyGroup)
	for _, g := range cfg.ProxyGroups {
		groups[g.Name] = g
	}

	// 每个国家一个url-test子分组，成员为该国节点
	japanGroup := countryFlag("Japan") + " Japan"
	g, ok := groups[japanGroup]
	if !ok {
		t.Fatalf("缺少国家分组 %s，实际组: %v", japanGroup, cfg.ProxyGroups)
	}
	if g.Type != "url-test" {
		t.Errorf("国家分组类型应为url-test，实际 %s", g.Type)
	}
	if len(g.Proxies) != 2 {
		t.Errorf("Japan分组应包含2个节点，实际: %v", g.Proxies)
	}
	for _, member := range g.Proxies {
		if !strings.Contains(member, "Japan-") {
			t.Errorf("Japan分组成员不应混入其他国家: %s", member)
		}
	}
	unknownGroup := countryFlag("Unknown") + " Unknown"
	if _, ok := groups[unknownGroup]; !ok {
		t.Errorf("缺少Unknown国家分组")
	}

	// 主选择组引用国家分组名，而不是散的节点名
	sel, ok := groups[groupSelect]
	if !ok {
		t.Fatal("缺少主选择组")
	}
	selMembers := make(map[string]bool)
	for _, m := range sel.Proxies {
		selMembers[m] = true
	}
	if !selMembers[japanGroup] || !selMembers[unknownGroup] {
		t.Errorf("主选择组应引用国家分组，实际成员: %v", sel.Proxies)
	}
	for _, m := range sel.Proxies {
		if strings.Contains(m, "-1") || strings.Contains(m, "-2") {
			t.Errorf("主选择组不应直接引用节点名: %s", m)
		}
	}
}

func TestBuildRankedConfigMaxNodes(t *testing.T) {
	cfg := BuildRankedConfig(sampleReports(), 2)
	if len(cfg.Proxies) != 2 {
		t.Errorf("maxNodes=2时应只保留2个节点，实际 %d", len(cfg.Proxies))
	}
}

func TestEmptyInputDegradesToDirect(t *testing.T) {
	cfg := BuildRankedConfig(nil, 500)

	data, err := cfg.Render()
	if err != nil {
		t.Fatalf("空输入也应渲染出合法yaml: %v", err)
	}

	// 输出中绝不能出现模板占位符
	text := string(data)
	for _, bad := range []string{"{{", "}}", "PLACEHOLDER", "TODO"} {
		if strings.Contains(text, bad) {
			t.Errorf("渲染结果不应包含占位符 %q", bad)
		}
	}

	// 空节点时测速类组退化为DIRECT成员
	for _, g := range cfg.ProxyGroups {
		if g.Name == groupAuto || g.Name == groupFallback || g.Name == groupLoadBalance {
			if len(g.Proxies) != 1 || g.Proxies[0] != "DIRECT" {
				t.Errorf("组 %s 空节点时应退化为[DIRECT]，实际: %v", g.Name, g.Proxies)
			}
		}
	}

	// 渲染结果应能被重新解析
	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("渲染出的yaml无法解析: %v", err)
	}
	if _, ok := parsed["proxy-groups"]; !ok {
		t.Error("渲染结果应包含proxy-groups")
	}
}

func TestGroupCaps(t *testing.T) {
	reports := make([]check.Report, 60)
	for i := range reports {
		ip := proxies.Node{Server: "10.0.0.1", Port: 443, Kind: proxies.KindDirect}
		reports[i] = check.Report{
			Candidate: proxies.IPCandidate{IP: ip.Server, Nodes: []proxies.Node{ip}},
			Result:    check.Result{IsPure: true, RiskScore: 1, Country: "Japan"},
		}
	}

	cfg := BuildRankedConfig(reports, 500)
	japanGroup := countryFlag("Japan") + " Japan"
	caps := map[string]int{
		groupAuto:        autoGroupCap,
		groupFallback:    fallbackGroupCap,
		groupLoadBalance: loadBalanceGroupCap,
		japanGroup:       countryGroupCap,
	}
	for _, g := range cfg.ProxyGroups {
		if limit, ok := caps[g.Name]; ok && len(g.Proxies) > limit {
			t.Errorf("组 %s 成员数 %d 超过上限 %d", g.Name, len(g.Proxies), limit)
		}
	}
}
