package proxies

import "testing"

func TestIsValidIPv4(t *testing.T) {
	valid := []string{"1.2.3.4", "255.255.255.255", "0.0.0.0", "8.8.8.8"}
	for _, s := range valid {
		if !IsValidIPv4(s) {
			t.Errorf("%s 应是合法IPv4", s)
		}
	}
	invalid := []string{"256.1.1.1", "1.2.3", "1.2.3.4.5", "example.com", "::1", "1.2.3.-4", ""}
	for _, s := range invalid {
		if IsValidIPv4(s) {
			t.Errorf("%s 不应被识别为IPv4", s)
		}
	}
}

func TestExtractCandidatesDedup(t *testing.T) {
	nodes := []Node{
		{SubID: "a", Name: "n1", Server: "9.9.9.9", Port: 443, Kind: KindTrojan},
		{SubID: "b", Name: "n2", Server: "9.9.9.9", Port: 8443, Kind: KindVMess},
		{SubID: "a", Name: "n3", Server: "1.1.1.1", Port: 443, Kind: KindVMess},
		{SubID: "a", Name: "n4", Server: "example.com", Port: 443, Kind: KindVMess},
	}

	cands := ExtractCandidates(nodes)
	if len(cands) != 2 {
		t.Fatalf("期望2个去重后的IP，实际 %d", len(cands))
	}

	// IP唯一性
	seen := map[string]struct{}{}
	for _, c := range cands {
		if _, dup := seen[c.IP]; dup {
			t.Errorf("IP %s 出现了多次", c.IP)
		}
		seen[c.IP] = struct{}{}
	}

	// 首次出现顺序保持
	if cands[0].IP != "9.9.9.9" || cands[1].IP != "1.1.1.1" {
		t.Errorf("候选顺序应按首次出现排列: %+v", cands)
	}

	// 同IP的节点全部归并到一个候选下
	if len(cands[0].Nodes) != 2 {
		t.Errorf("9.9.9.9 应挂2个节点，实际 %d", len(cands[0].Nodes))
	}

	// 候选下节点总数等于IP型节点总数
	total := 0
	for _, c := range cands {
		total += len(c.Nodes)
	}
	if total != 3 {
		t.Errorf("候选节点总数应为3(域名节点被排除)，实际 %d", total)
	}
}

func TestExtractIPsFromText(t *testing.T) {
	text := []byte("前缀 1.2.3.4 中间 5.6.7.8,1.2.3.4 结尾 999.1.1.1")
	nodes := ExtractIPsFromText(text, "s")
	if len(nodes) != 2 {
		t.Fatalf("应提取2个去重IP，实际 %d", len(nodes))
	}
	if nodes[0].Server != "1.2.3.4" || nodes[1].Server != "5.6.7.8" {
		t.Errorf("提取结果不符: %+v", nodes)
	}
	for _, n := range nodes {
		if n.Kind != KindDirect || n.SubID != "s" {
			t.Errorf("回退提取的节点应为direct并记录订阅ID: %+v", n)
		}
	}
}
