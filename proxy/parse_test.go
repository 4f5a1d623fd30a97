package proxies

import (
	"encoding/base64"
	"testing"
)

func TestParseVMessLink(t *testing.T) {
	payload := `{"ps":"n1","add":"1.2.3.4","port":443,"id":"u1"}`
	link := "vmess://" + base64.StdEncoding.EncodeToString([]byte(payload))

	nodes := ParseNodes([]byte(link), "sub1")
	if len(nodes) != 1 {
		t.Fatalf("期望解析出1个节点，实际 %d", len(nodes))
	}
	n := nodes[0]
	if n.Name != "n1" || n.Server != "1.2.3.4" || n.Port != 443 || n.Kind != KindVMess || n.UUID != "u1" {
		t.Errorf("vmess节点字段不符: %+v", n)
	}
	if n.SubID != "sub1" {
		t.Errorf("节点应记录来源订阅ID, 实际: %s", n.SubID)
	}
}

func TestParseVlessAndTrojanLinks(t *testing.T) {
	input := "vless://uuid-1@5.6.7.8:8443?flow=xtls-rprx-vision#节点A\n" +
		"trojan://pass-1@9.9.9.9:443#节点B\n"

	nodes := ParseNodes([]byte(input), "s")
	if len(nodes) != 2 {
		t.Fatalf("期望2个节点，实际 %d", len(nodes))
	}
	if nodes[0].Kind != KindVLess || nodes[0].UUID != "uuid-1" || nodes[0].Name != "节点A" {
		t.Errorf("vless解析错误: %+v", nodes[0])
	}
	if nodes[0].Flow != "xtls-rprx-vision" {
		t.Errorf("vless flow 解析错误: %s", nodes[0].Flow)
	}
	if nodes[1].Kind != KindTrojan || nodes[1].Password != "pass-1" || nodes[1].Server != "9.9.9.9" {
		t.Errorf("trojan解析错误: %+v", nodes[1])
	}
}

func TestParseSSLink(t *testing.T) {
	// userinfo = base64("aes-256-gcm:secret")
	userinfo := base64.RawURLEncoding.EncodeToString([]byte("aes-256-gcm:secret"))
	link := "ss://" + userinfo + "@2.2.2.2:8388#ss节点"

	nodes := ParseNodes([]byte(link), "s")
	if len(nodes) != 1 {
		t.Fatalf("期望1个节点，实际 %d", len(nodes))
	}
	n := nodes[0]
	if n.Kind != KindSS || n.Cipher != "aes-256-gcm" || n.Password != "secret" {
		t.Errorf("ss解析错误: %+v", n)
	}
}

func TestParseBase64Blob(t *testing.T) {
	plain := "trojan://p@3.3.3.3:443#t1\nvless://u@4.4.4.4:443#t2\n"
	blob := base64.StdEncoding.EncodeToString([]byte(plain))

	nodes := ParseNodes([]byte(blob), "s")
	if len(nodes) != 2 {
		t.Fatalf("base64订阅应解出2个节点，实际 %d", len(nodes))
	}
}

func TestParseClashBlock(t *testing.T) {
	doc := `
proxies:
  - name: hk-1
    type: vmess
    server: 7.7.7.7
    port: 443
    uuid: abc
  - {name: us-1, type: trojan, server: 8.8.4.4, port: 8443, password: pw}
  - name: broken
    type: vmess
`
	nodes := ParseNodes([]byte(doc), "s")
	if len(nodes) != 2 {
		t.Fatalf("clash块应解出2个节点(缺server的条目应跳过)，实际 %d", len(nodes))
	}
	if nodes[0].Name != "hk-1" || nodes[0].Server != "7.7.7.7" || nodes[0].Kind != KindVMess {
		t.Errorf("clash块节点1解析错误: %+v", nodes[0])
	}
	if nodes[1].Name != "us-1" || nodes[1].Port != 8443 || nodes[1].Password != "pw" {
		t.Errorf("clash块节点2解析错误: %+v", nodes[1])
	}
}

func TestParseBareIPLines(t *testing.T) {
	input := "1.1.1.1\n8.8.8.8\nnot-an-ip\n"
	nodes := ParseNodes([]byte(input), "s")
	if len(nodes) != 2 {
		t.Fatalf("裸IP清单应解出2个节点，实际 %d", len(nodes))
	}
	if nodes[0].Kind != KindDirect || nodes[0].Server != "1.1.1.1" || nodes[0].Port != 443 {
		t.Errorf("裸IP节点解析错误: %+v", nodes[0])
	}
}

func TestParseIdempotent(t *testing.T) {
	input := "trojan://p@3.3.3.3:443#t1\n1.2.3.4\n"
	first := ParseNodes([]byte(input), "s")
	second := ParseNodes([]byte(input), "s")
	if len(first) != len(second) {
		t.Fatalf("重复解析结果数量不一致: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("重复解析第%d个节点不一致", i)
		}
	}
}

func TestParseMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"vmess://!!!not-base64!!!",
		"ss://@:0",
		"random garbage line",
	}
	for _, in := range inputs {
		nodes := ParseNodes([]byte(in), "s")
		if len(nodes) != 0 {
			t.Errorf("畸形输入 %q 不应产出节点，实际 %d 个", in, len(nodes))
		}
	}
}
