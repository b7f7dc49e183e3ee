package handlers

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RateLimiter is the minimal interface required to guard signup and login.
type RateLimiter interface {
	Allow(key string) bool
}

// ProxyTrust lists the reverse proxies whose forwarding headers identify the real caller.
// The zero value trusts nobody, so limits key on the connection's remote address.
type ProxyTrust struct {
	Prefixes []netip.Prefix
}

func (p ProxyTrust) trusts(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p.Prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's address. X-Forwarded-For and X-Real-IP are only read when the
// request arrived from a trusted proxy; the forwarded chain is walked from the right, skipping
// trusted hops, so a client cannot choose its own key by prepending entries.
func (p ProxyTrust) ClientIP(r *http.Request) string {
	remote := remoteHost(r)
	addr, err := netip.ParseAddr(remote)
	if err != nil || !p.trusts(addr) {
		return remote
	}

	if forwarded := r.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
		hops := strings.Split(strings.Join(forwarded, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			hopAddr, err := netip.ParseAddr(hop)
			if err != nil {
				break
			}
			if !p.trusts(hopAddr) {
				return hopAddr.Unmap().String()
			}
		}
	}
	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return remote
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func allowRequest(limiter RateLimiter, proxies ProxyTrust, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(rateLimitKey(proxies.ClientIP(r), scope))
}

func rateLimitKey(ip, scope string) string {
	if scope == "" {
		return ip
	}
	return scope + ":" + ip
}
