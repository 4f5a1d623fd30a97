package proxies

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	u "net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/samber/lo"
	"github.com/twj0/ip-address-purity-checker/config"
	"github.com/twj0/ip-address-purity-checker/store"
	"github.com/twj0/ip-address-purity-checker/utils"
	"gopkg.in/yaml.v3"
)

const subscriptionsKey = "subscriptions"

var (
	IsSysProxyAvailable bool
	IsGhProxyAvailable  bool
	// ErrIgnore 用作内部特殊标记，表示无需记录日志的"非错误"返回
	ErrIgnore = errors.New("error-ignore")
)

// LoadSubscriptions 合并存储中的订阅注册表与配置文件里的订阅链接。
// 配置新增的链接会补进注册表，已有条目保留上次检测状态。
func LoadSubscriptions(kv store.Store) ([]*Subscription, error) {
	subs := make([]*Subscription, 0, 8)

	if raw, ok, err := kv.Get(subscriptionsKey); err == nil && ok {
		if err := json.Unmarshal([]byte(raw), &subs); err != nil {
			slog.Warn(fmt.Sprintf("订阅注册表损坏，按空处理: %v", err))
			subs = subs[:0]
		}
	}

	known := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		known[s.URL] = struct{}{}
	}

	for _, rawURL := range resolveSubUrls() {
		if _, ok := known[rawURL]; ok {
			continue
		}
		known[rawURL] = struct{}{}
		subs = append(subs, &Subscription{
			ID:     subID(rawURL),
			Name:   subName(rawURL),
			URL:    rawURL,
			Status: StatusPending,
		})
	}
	return subs, nil
}

// SaveSubscriptions 持久化订阅注册表
func SaveSubscriptions(kv store.Store, subs []*Subscription) error {
	data, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("序列化订阅注册表失败: %w", err)
	}
	return kv.Put(subscriptionsKey, string(data), 0)
}

func subID(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return fmt.Sprintf("%x", sum[:6])
}

func subName(rawURL string) string {
	if d, err := u.Parse(rawURL); err == nil {
		if d.Fragment != "" {
			return d.Fragment
		}
		if d.Host != "" {
			return d.Host
		}
	}
	return rawURL
}

// FetchAll 分批并发抓取所有订阅并解析节点。
// 批大小和批间延迟由配置控制，避免打爆订阅源；
// 每批内各订阅的结果按原始下标写回，整体顺序与输入一致。
func FetchAll(ctx context.Context, subs []*Subscription) []Node {
	IsSysProxyAvailable = utils.GetSysProxy()
	IsGhProxyAvailable = utils.GetGhProxy()

	batchSize := config.GlobalConfig.SubBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	delay := time.Duration(config.GlobalConfig.SubBatchDelay) * time.Second

	slog.Info("订阅链接数量", "总计", len(subs))

	perSub := make([][]Node, len(subs))

	for start := 0; start < len(subs); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+batchSize, len(subs))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				perSub[idx] = fetchOne(subs[idx])
			}(i)
		}
		wg.Wait()

		// 批间延迟，给订阅源留出喘息时间
		if end < len(subs) && delay > 0 {
			select {
			case <-ctx.Done():
				return lo.Flatten(perSub)
			case <-time.After(delay):
			}
		}
	}

	return lo.Flatten(perSub)
}

// fetchOne 抓取并解析单个订阅，同时更新其状态
func fetchOne(sub *Subscription) []Node {
	sub.LastCheckedAt = time.Now()

	data, err := GetDataFromSub(sub.URL)
	if err != nil {
		sub.Status = StatusError
		sub.NodeCount = 0
		sub.LastError = err.Error()
		if !errors.Is(err, ErrIgnore) {
			slog.Error(fmt.Sprintf("获取订阅失败: %v", err))
		}
		return nil
	}

	nodes := ParseNodes(data, sub.ID)
	if len(nodes) == 0 {
		// 结构化解析失败时回退到纯文本IP提取
		nodes = ExtractIPsFromText(data, sub.ID)
	}

	sub.Status = StatusActive
	sub.NodeCount = len(nodes)
	sub.LastError = ""
	slog.Debug(fmt.Sprintf("获取订阅: %s，有效节点数量: %d", sub.URL, len(nodes)))
	return nodes
}

// resolveSubUrls 合并本地与远程订阅清单并去重（去重时忽略 fragment）
func resolveSubUrls() []string {
	urls := make([]string, 0, len(config.GlobalConfig.SubUrls))
	urls = append(urls, config.GlobalConfig.SubUrls...)

	for _, listURL := range config.GlobalConfig.SubUrlsRemote {
		warped := utils.WarpURL(listURL, IsGhProxyAvailable)
		remote, err := fetchRemoteSubUrls(warped)
		if err != nil {
			if !errors.Is(err, ErrIgnore) {
				slog.Warn("获取远程订阅清单失败，已忽略", "err", err)
			}
			continue
		}
		urls = append(urls, remote...)
	}

	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, s := range urls {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		key := s
		if d, err := u.Parse(s); err == nil {
			d.Fragment = ""
			key = d.String()
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

type subUrlsDoc struct {
	SubUrls []string `yaml:"sub-urls" json:"sub-urls"`
}

// fetchRemoteSubUrls 从远程地址读取订阅URL清单
// 支持两种格式：
// 1) 纯文本，按换行分隔，支持以 # 开头的注释与空行
// 2) YAML/JSON 的字符串数组
func fetchRemoteSubUrls(listURL string) ([]string, error) {
	if listURL == "" {
		return nil, errors.New("empty list url")
	}
	data, err := GetDataFromSub(listURL)
	if err != nil {
		return nil, err
	}

	// 1) 优先尝试解析为对象形式 (sub-urls: [...])
	var obj subUrlsDoc
	if err := yaml.Unmarshal(data, &obj); err == nil && len(obj.SubUrls) > 0 {
		return obj.SubUrls, nil
	}

	// 2) 尝试解析为数组形式 ([...])
	var arr []string
	if err := yaml.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	// 3) 回退为按行解析 (纯文本)
	res := make([]string, 0, 16)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "-"); ok {
			line = strings.TrimSpace(after)
		}
		res = append(res, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetDataFromSub 带重试地抓取一个订阅链接
func GetDataFromSub(rawURL string) ([]byte, error) {
	// 内部类型：单次尝试计划
	type tryPlan struct {
		url      string
		useProxy bool // true: 使用系统代理; false: 明确禁用代理
	}

	maxRetries := config.GlobalConfig.SubUrlsReTry
	if maxRetries <= 0 {
		maxRetries = 1
	}
	retryInterval := config.GlobalConfig.SubUrlsRetryInterval
	if retryInterval <= 0 {
		retryInterval = 1
	}
	timeout := config.GlobalConfig.SubUrlsTimeout
	if timeout <= 0 {
		timeout = 10
	}

	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(retryInterval) * time.Second)
		}

		normalized := ensureScheme(rawURL)

		// 尝试顺序：
		// 1) 原始链接 + 系统代理（若可用），否则直连
		// 2) GitHub 代理直连（仅当 WarpURL 确实发生变化且可用）
		plans := make([]tryPlan, 0, 2)
		if IsSysProxyAvailable {
			plans = append(plans, tryPlan{url: normalized, useProxy: true})
		} else {
			plans = append(plans, tryPlan{url: normalized, useProxy: false})
		}
		gh := utils.WarpURL(normalized, IsGhProxyAvailable)
		if IsGhProxyAvailable && gh != normalized {
			plans = append(plans, tryPlan{url: gh, useProxy: false})
		}

		for _, p := range plans {
			body, err, terminal := fetchOnce(p.url, p.useProxy, timeout)
			if err == nil {
				if len(body) == 0 {
					// 空响应多半是订阅已被清空，标记错误但不刷日志
					return nil, fmt.Errorf("订阅内容为空: %s: %w", p.url, ErrIgnore)
				}
				return body, nil
			}
			lastErr = err
			if terminal {
				// 明确错误（如 404/401）直接终止所有重试
				return nil, lastErr
			}
		}
	}

	return nil, fmt.Errorf("重试%d次后失败: %v", maxRetries, lastErr)
}

// ensureScheme 如果缺少协议，默认补为 http:// 或 https://
func ensureScheme(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	if strings.HasPrefix(s, "127.0.0.1:") || strings.HasPrefix(strings.ToLower(s), "localhost:") {
		return "http://" + s
	}
	if strings.HasPrefix(s, "raw.githubusercontent.com/") || strings.HasPrefix(s, "github.com/") {
		return "https://" + s
	}
	return "http://" + s
}

// fetchOnce 执行一次请求；返回 (body, err, terminal)
// terminal=true 表示不应继续重试（如 404/401 等明确错误）
func fetchOnce(target string, useProxy bool, timeoutSec int) ([]byte, error, bool) {
	parsed, err := u.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("解析URL失败: %w", err), false
	}

	req, err := http.NewRequest("GET", parsed.String(), nil)
	if err != nil {
		return nil, err, false
	}
	req.Header.Set("User-Agent", "ip-purity-checker")
	req.Header.Set("Accept-Encoding", "gzip")

	client := &http.Client{
		Timeout: time.Duration(timeoutSec) * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			// 自己处理gzip，保留原始Content-Encoding头
			DisableCompression: true,
		},
	}

	if useProxy {
		// 优先使用用户显式配置的系统代理，其次回退到环境变量
		if p := strings.TrimSpace(config.GlobalConfig.SystemProxy); p != "" {
			if pu, perr := u.Parse(p); perr == nil {
				client.Transport = &http.Transport{Proxy: http.ProxyURL(pu), DisableCompression: true}
			}
		}
	} else {
		client.Transport = &http.Transport{Proxy: nil, DisableCompression: true}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("订阅: %s 请求失败: %v", req.URL.String(), err), false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusGone, http.StatusUnavailableForLegalReasons:
			// 明确失效，直接终止
			return nil, fmt.Errorf("订阅链接已失效: %s [状态码: %d]", req.URL.String(), resp.StatusCode), true
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("订阅: %s 权限不足或需要认证 (状态码: %d)", req.URL.String(), resp.StatusCode), true
		default:
			return nil, fmt.Errorf("订阅: %s 状态码: %d", req.URL.String(), resp.StatusCode), false
		}
	}

	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, gerr := gzip.NewReader(resp.Body)
		if gerr != nil {
			return nil, fmt.Errorf("解压订阅 %s 失败: %v", req.URL.String(), gerr), false
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取订阅链接: %s 数据错误: %v", req.URL.String(), err), false
	}
	return body, nil, false
}
