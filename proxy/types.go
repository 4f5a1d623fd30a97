// Package proxies 处理订阅获取、节点解析与IP提取去重
package proxies

import "time"

// SourceStatus 订阅源状态
type SourceStatus string

const (
	StatusPending SourceStatus = "pending"
	StatusActive  SourceStatus = "active"
	StatusError   SourceStatus = "error"
)

// Subscription 一个订阅源及其最近一次检测情况
type Subscription struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	URL           string       `json:"url"`
	Status        SourceStatus `json:"status"`
	NodeCount     int          `json:"node_count"`
	LastCheckedAt time.Time    `json:"last_checked_at,omitzero"`
	LastError     string       `json:"last_error,omitempty"`
}

// NodeKind 节点协议类型
type NodeKind string

const (
	KindVMess   NodeKind = "vmess"
	KindVLess   NodeKind = "vless"
	KindTrojan  NodeKind = "trojan"
	KindSS      NodeKind = "ss"
	KindDirect  NodeKind = "direct"
	KindUnknown NodeKind = "unknown"
)

// Node 从订阅解析出来的单个节点，解析完成后不再修改
type Node struct {
	SubID    string
	Name     string
	Server   string
	Port     int
	Kind     NodeKind
	UUID     string
	Password string
	Cipher   string
	AlterID  int
	Flow     string
	Network  string
	Raw      string
}

// IPCandidate 按IP聚合后的检测单元，纯净度按IP查询而不是按节点
type IPCandidate struct {
	IP    string
	Nodes []Node
}
