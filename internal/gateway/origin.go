package gateway

import (
	"net"
	"net/url"
	"strings"
)

// allowedHost reports whether the Host header names the loopback interface.
// Anything else is a DNS rebinding attempt.
func allowedHost(host string) bool {
	if host == "" {
		return true
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")
	return isLoopback(hostname)
}

// allowedOrigin accepts browser extension origins, optionally restricted to
// the configured extension ids, and loopback pages. An absent origin is a
// non-browser client and is accepted.
func (g *Gateway) allowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, scheme := range []string{"chrome-extension://", "moz-extension://"} {
		if id, ok := strings.CutPrefix(origin, scheme); ok {
			if len(g.extensionIDs) == 0 {
				return true
			}
			return g.extensionIDs[strings.TrimSuffix(id, "/")]
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return isLoopback(u.Hostname())
}

func isLoopback(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}
