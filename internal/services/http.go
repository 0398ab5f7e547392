package services

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// NewHTTPClient builds the client shared by catalog queries and artifact
// downloads. A non-nil proxy (http, https, or socks5) applies to every request.
func NewHTTPClient(proxy *url.URL, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
