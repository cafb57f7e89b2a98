package rate

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"mdxbuild/pkg/contract"
)

// HostKey 从远程资源标识提取限流分组键：小写主机名，省略协议默认端口。
func HostKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("rate: %w: %v", contract.ErrInvalidInput, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("rate: %w: no host in %q", contract.ErrInvalidInput, rawURL)
	}
	host, port := u.Hostname(), u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port == "" {
		return normalizeHost(host), nil
	}
	return normalizeHost(net.JoinHostPort(host, port)), nil
}

func normalizeHost(h string) string { return strings.ToLower(strings.TrimSpace(h)) }
