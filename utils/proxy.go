package utils

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/twj0/ip-address-purity-checker/config"
)

// GetSysProxy 检测系统代理是否可用，并设置环境变量
func GetSysProxy() bool {
	commonProxies := []string{
		"http://127.0.0.1:7890",
		"http://127.0.0.1:7891",
		"http://127.0.0.1:1080",
		"http://127.0.0.1:8080",
	}

	// 优先使用配置文件中的代理，其次检测常见端口
	proxy := findAvailableSysProxy(config.GlobalConfig.SystemProxy, commonProxies)
	if proxy != "" {
		os.Setenv("HTTP_PROXY", proxy)
		os.Setenv("HTTPS_PROXY", proxy)
		config.GlobalConfig.SystemProxy = proxy
		slog.Debug("系统代理", "proxy", proxy)
		return true
	}

	slog.Debug("未找到可用代理，将不设置代理")
	return false
}

// GetGhProxy 检测 github 代理是否可用，并设置可用的 github 代理
func GetGhProxy() bool {
	ghProxy := config.GlobalConfig.GithubProxy
	ghProxyGroup := config.GlobalConfig.GithubProxyGroup

	if ghProxy == "" && ghProxyGroup == nil {
		slog.Debug("未配置 githubproxy，将不使用 githubproxy")
		return false
	}

	// 先检测单个 GhProxy
	if ghProxy != "" {
		if ok, normalized := checkGhProxyAvailable(ghProxy); ok {
			config.GlobalConfig.GithubProxy = normalized
			slog.Debug("GitHub代理", "normalized", normalized)
			return true
		}
	}

	// 并发检测 GhProxyGroup，取最快可用的
	if len(ghProxyGroup) > 0 {
		type result struct {
			proxy string
			ok    bool
			cost  time.Duration
		}

		resultCh := make(chan result, len(ghProxyGroup))
		var wg sync.WaitGroup

		for _, proxy := range ghProxyGroup {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				start := time.Now()
				ok, normalized := checkGhProxyAvailable(p)
				resultCh <- result{proxy: normalized, ok: ok, cost: time.Since(start)}
			}(proxy)
		}

		go func() {
			wg.Wait()
			close(resultCh)
		}()

		var best result
		best.cost = time.Hour
		for r := range resultCh {
			if r.ok && r.cost < best.cost {
				best = r
			}
		}

		if best.ok {
			config.GlobalConfig.GithubProxy = best.proxy
			slog.Debug("最佳GitHub代理", "best", best.proxy, "耗时", best.cost)
			return true
		}
	}

	slog.Debug("未找到可用的 GitHubProxy，将不使用 GitHubProxy")
	return false
}

// checkGhProxyAvailable 检查指定的 githubproxy是否可用,并返回处理后的地址
func checkGhProxyAvailable(githubProxy string) (bool, string) {
	if !strings.HasSuffix(githubProxy, "/") {
		githubProxy = githubProxy + "/"
	}
	if !strings.HasPrefix(githubProxy, "http://") && !strings.HasPrefix(githubProxy, "https://") {
		githubProxy = "https://" + githubProxy
	}

	testTarget := "https://raw.githubusercontent.com/github/gitignore/main/Go.gitignore"

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			Proxy: nil, // 禁用系统代理，确保直连测试
		},
	}

	resp, err := client.Get(githubProxy + testTarget)
	if err != nil {
		return false, githubProxy
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, githubProxy
	}
	if _, err = io.Copy(io.Discard, resp.Body); err != nil {
		return false, githubProxy
	}

	return true, githubProxy
}

// isSysProxyAvailable 检测代理是否可用,要求两个检测目标都成功
func isSysProxyAvailable(proxy string) bool {
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return false
	}

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   3 * time.Second,
	}

	testURLs := []struct {
		url        string
		expectCode int
	}{
		{"https://www.google.com/generate_204", http.StatusNoContent},
		{"https://raw.githubusercontent.com/github/gitignore/main/Go.gitignore", http.StatusOK},
	}

	results := make(chan bool, len(testURLs))
	var wg sync.WaitGroup
	for _, t := range testURLs {
		wg.Add(1)
		go func(u string, code int) {
			defer wg.Done()
			resp, err := client.Get(u)
			if err != nil {
				results <- false
				return
			}
			defer resp.Body.Close()
			results <- resp.StatusCode == code
		}(t.url, t.expectCode)
	}

	wg.Wait()
	close(results)

	for ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// findAvailableSysProxy 优先检测配置文件中的代理，不可用则并发检测常见端口
func findAvailableSysProxy(configProxy string, candidates []string) string {
	if configProxy != "" && isSysProxyAvailable(configProxy) {
		return configProxy
	}

	resultCh := make(chan string, 1)
	var wg sync.WaitGroup

	for _, proxy := range candidates {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			if isSysProxyAvailable(p) {
				select {
				case resultCh <- p: // 只取第一个可用的
				default:
				}
			}
		}(proxy)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	if proxy, ok := <-resultCh; ok {
		return proxy
	}
	return ""
}
