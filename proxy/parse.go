package proxies

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// ParseNodes 把一份订阅原文解析为节点列表。
// 整体base64、clash-yaml片段、v2ray链接列表、纯IP列表混在一起也能处理；
// 单行解析失败只跳过该行，绝不中断整个订阅。
func ParseNodes(payload []byte, subID string) []Node {
	content := string(payload)

	// 先尝试整体base64解码，部分订阅是整篇编码的纯文本
	if decoded, ok := tryBase64(content); ok {
		content = decoded
	}

	// clash风格的yaml片段按行扫描proxies列表
	if strings.Contains(content, "proxies:") || strings.Contains(content, "Proxy:") {
		if nodes := parseClashBlock(content, subID); len(nodes) > 0 {
			return nodes
		}
	}

	nodes := make([]Node, 0, 16)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		node, ok := parseLine(line, subID)
		if !ok {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// tryBase64 尝试把整个payload按base64解码，结果必须是可打印文本才采用
func tryBase64(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}

	var decoded []byte
	var err error
	if decoded, err = base64.StdEncoding.DecodeString(trimmed); err != nil {
		if decoded, err = base64.RawStdEncoding.DecodeString(trimmed); err != nil {
			if decoded, err = base64.RawURLEncoding.DecodeString(trimmed); err != nil {
				return "", false
			}
		}
	}

	text := string(decoded)
	for _, r := range text {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if !unicode.IsPrint(r) {
			return "", false
		}
	}
	return text, true
}

// parseClashBlock 按行扫描clash-yaml的proxies列表。
// 以 "- name:" 或 "- {" 开头的行开启一个节点，后续缩进的 key: value 归属该节点，
// 缺少server或port的节点直接丢弃。
func parseClashBlock(content, subID string) []Node {
	nodes := make([]Node, 0, 16)

	var cur map[string]string
	flush := func() {
		if cur == nil {
			return
		}
		defer func() { cur = nil }()

		server := cur["server"]
		port, _ := strconv.Atoi(cur["port"])
		if server == "" || port == 0 {
			return
		}
		nodes = append(nodes, Node{
			SubID:    subID,
			Name:     defaultName(cur["name"]),
			Server:   server,
			Port:     port,
			Kind:     kindFromType(cur["type"]),
			UUID:     cur["uuid"],
			Password: cur["password"],
			Cipher:   cur["cipher"],
		})
	}

	for _, raw := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(raw)
		indented := len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t')

		switch {
		case strings.HasPrefix(trimmed, "- name:") || strings.HasPrefix(trimmed, "- {"):
			flush()
			cur = make(map[string]string)
			// 行内映射 "- {name: x, server: y, ...}" 一次拆完
			if strings.HasPrefix(trimmed, "- {") {
				inline := strings.Trim(strings.TrimPrefix(trimmed, "- {"), "}")
				for _, part := range strings.Split(inline, ",") {
					addPair(cur, part)
				}
			} else {
				addPair(cur, strings.TrimPrefix(trimmed, "- "))
			}
		case cur != nil && indented && strings.Contains(trimmed, ":") && !strings.HasPrefix(trimmed, "-"):
			addPair(cur, trimmed)
		case trimmed == "" || indented:
			// 空行和其他缩进内容不结束当前节点
		default:
			// 非缩进的普通行结束当前块
			flush()
		}
	}
	flush()
	return nodes
}

func addPair(m map[string]string, kv string) {
	key, value, ok := strings.Cut(kv, ":")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	value = strings.Trim(strings.TrimSpace(value), `'"`)
	if key != "" {
		m[key] = value
	}
}

func kindFromType(t string) NodeKind {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "vmess":
		return KindVMess
	case "vless":
		return KindVLess
	case "trojan":
		return KindTrojan
	case "ss", "shadowsocks":
		return KindSS
	default:
		return KindUnknown
	}
}

// vmessPayload vmess链接里base64编码的JSON结构
type vmessPayload struct {
	PS      string          `json:"ps"`
	Remarks string          `json:"remarks"`
	Add     string          `json:"add"`
	Port    json.RawMessage `json:"port"`
	ID      string          `json:"id"`
	Aid     json.RawMessage `json:"aid"`
	Scy     string          `json:"scy"`
	Net     string          `json:"net"`
}

// parseLine 解析单行节点链接，解析失败返回ok=false由调用方跳过
func parseLine(line, subID string) (Node, bool) {
	switch {
	case strings.HasPrefix(line, "vmess://"):
		return parseVMess(line, subID)
	case strings.HasPrefix(line, "vless://"):
		return parseURILink(line, subID, KindVLess)
	case strings.HasPrefix(line, "trojan://"):
		return parseURILink(line, subID, KindTrojan)
	case strings.HasPrefix(line, "ss://"):
		return parseSS(line, subID)
	case IsValidIPv4(line):
		// 纯IP行合成直连节点
		return Node{
			SubID:  subID,
			Name:   "Direct-" + line,
			Server: line,
			Port:   443,
			Kind:   KindDirect,
			Raw:    line,
		}, true
	default:
		return Node{}, false
	}
}

func parseVMess(link, subID string) (Node, bool) {
	payload := strings.TrimPrefix(link, "vmess://")
	decoded, ok := tryBase64(payload)
	if !ok {
		slog.Debug("vmess链接base64解码失败，跳过")
		return Node{}, false
	}

	var v vmessPayload
	if err := json.Unmarshal([]byte(decoded), &v); err != nil {
		slog.Debug(fmt.Sprintf("vmess JSON解析失败，跳过: %v", err))
		return Node{}, false
	}

	name := v.PS
	if name == "" {
		name = v.Remarks
	}
	port := rawToInt(v.Port)
	if v.Add == "" || port == 0 {
		return Node{}, false
	}

	cipher := v.Scy
	if cipher == "" {
		cipher = "auto"
	}
	network := v.Net
	if network == "" {
		network = "tcp"
	}

	return Node{
		SubID:   subID,
		Name:    defaultName(name),
		Server:  v.Add,
		Port:    port,
		Kind:    KindVMess,
		UUID:    v.ID,
		AlterID: rawToInt(v.Aid),
		Cipher:  cipher,
		Network: network,
		Raw:     link,
	}, true
}

// parseURILink 处理 vless:// 和 trojan:// 这类标准URI形式的链接
func parseURILink(link, subID string, kind NodeKind) (Node, bool) {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		slog.Debug(fmt.Sprintf("链接解析失败，跳过: %v", err))
		return Node{}, false
	}

	port, _ := strconv.Atoi(parsed.Port())
	if parsed.Hostname() == "" || port == 0 {
		return Node{}, false
	}

	node := Node{
		SubID:   subID,
		Name:    defaultName(parsed.Fragment),
		Server:  parsed.Hostname(),
		Port:    port,
		Kind:    kind,
		Network: parsed.Query().Get("type"),
		Flow:    parsed.Query().Get("flow"),
		Raw:     link,
	}
	if parsed.User != nil {
		switch kind {
		case KindVLess:
			node.UUID = parsed.User.Username()
		case KindTrojan:
			node.Password = parsed.User.Username()
		}
	}
	return node, true
}

func parseSS(link, subID string) (Node, bool) {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		slog.Debug(fmt.Sprintf("ss链接解析失败，跳过: %v", err))
		return Node{}, false
	}

	port, _ := strconv.Atoi(parsed.Port())
	if parsed.Hostname() == "" || port == 0 {
		return Node{}, false
	}

	node := Node{
		SubID:  subID,
		Name:   defaultName(parsed.Fragment),
		Server: parsed.Hostname(),
		Port:   port,
		Kind:   KindSS,
		Raw:    link,
	}

	// userinfo是base64(method:password)，按第一个冒号拆分
	if parsed.User != nil {
		if decoded, ok := tryBase64(parsed.User.Username()); ok {
			method, password, found := strings.Cut(decoded, ":")
			if found {
				node.Cipher = method
				node.Password = password
			}
		}
	}
	return node, true
}

func defaultName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	// URL fragment可能带百分号编码
	if decoded, err := url.QueryUnescape(name); err == nil {
		return decoded
	}
	return name
}

func rawToInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	s := strings.Trim(string(raw), `"`)
	n, _ := strconv.Atoi(s)
	return n
}
