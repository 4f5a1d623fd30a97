package proxies

import (
	"regexp"
	"strconv"
	"strings"
)

var ipv4Regex = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// IsValidIPv4 严格校验IPv4字面量：四段点分，每段0-255，不允许前后有其他内容
func IsValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// ExtractCandidates 按server字段收集IP并聚合节点。
// server是域名的节点不做纯净度检测，直接排除；同一IP只产生一个候选。
func ExtractCandidates(nodes []Node) []IPCandidate {
	index := make(map[string]int)
	candidates := make([]IPCandidate, 0, len(nodes))

	for _, node := range nodes {
		if !IsValidIPv4(node.Server) {
			continue
		}
		if i, ok := index[node.Server]; ok {
			candidates[i].Nodes = append(candidates[i].Nodes, node)
			continue
		}
		index[node.Server] = len(candidates)
		candidates = append(candidates, IPCandidate{
			IP:    node.Server,
			Nodes: []Node{node},
		})
	}
	return candidates
}

// ExtractIPsFromText 从原始文本中正则提取IPv4，解析不出任何节点时的兜底手段
func ExtractIPsFromText(payload []byte, subID string) []Node {
	seen := make(map[string]struct{})
	nodes := make([]Node, 0, 8)
	for _, match := range ipv4Regex.FindAllString(string(payload), -1) {
		if !IsValidIPv4(match) {
			continue
		}
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		nodes = append(nodes, Node{
			SubID:  subID,
			Name:   "Direct-" + match,
			Server: match,
			Port:   443,
			Kind:   KindDirect,
			Raw:    match,
		})
	}
	return nodes
}
