package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

var (
	proxyClientLock sync.Mutex
	proxyClients    = make(map[string]*http.Client)
)

// 上游超时由调用方的 context 控制，这里不设置 Client.Timeout
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// GetHttpClientWithProxy returns the shared direct client or a proxy-enabled one when proxyURL is provided.
func GetHttpClientWithProxy(proxyURL string) (*http.Client, error) {
	return NewProxyHttpClient(proxyURL)
}

// ResetProxyClientCache 清空代理客户端缓存，确保下次使用时重新初始化
func ResetProxyClientCache() {
	proxyClientLock.Lock()
	defer proxyClientLock.Unlock()
	for _, client := range proxyClients {
		if transport, ok := client.Transport.(*http.Transport); ok && transport != nil {
			transport.CloseIdleConnections()
		}
	}
	proxyClients = make(map[string]*http.Client)
}

// NewProxyHttpClient 创建出站 HTTP 客户端，支持 http/https/socks5 代理
func NewProxyHttpClient(proxyURL string) (*http.Client, error) {
	proxyClientLock.Lock()
	defer proxyClientLock.Unlock()
	if client, ok := proxyClients[proxyURL]; ok {
		return client, nil
	}

	transport := newTransport()
	if proxyURL != "" {
		parsedURL, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		switch parsedURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(parsedURL)
		case "socks5", "socks5h":
			var auth *proxy.Auth
			if parsedURL.User != nil {
				auth = &proxy.Auth{
					User: parsedURL.User.Username(),
				}
				if password, ok := parsedURL.User.Password(); ok {
					auth.Password = password
				}
			}
			// proxy.SOCKS5 使用 tcp，DNS 查询也经过代理，行为与 socks5h 相同
			dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
			if err != nil {
				return nil, err
			}
			transport.Proxy = nil
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			}
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s, must be http, https, socks5 or socks5h", parsedURL.Scheme)
		}
	}

	client := &http.Client{Transport: transport}
	proxyClients[proxyURL] = client
	return client, nil
}
