package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const (
	ipSourceRemoteAddr    = "remote_addr"
	ipSourceXForwardedFor = "x_forwarded_for"
	ipSourceXRealIP       = "x_real_ip"
)

// clientIPResolver decides which address identifies the caller. Forwarded
// headers are only believed when the socket peer is a trusted proxy, so a
// direct client cannot pick its own rate limit key.
type clientIPResolver struct {
	trustAll bool
	proxies  []netip.Prefix
}

// newClientIPResolver accepts CIDRs and bare addresses in TrustedProxies.
func newClientIPResolver(cfg RateLimitConfig) (*clientIPResolver, error) {
	resolver := &clientIPResolver{trustAll: cfg.TrustForwardedHeaders}
	for _, raw := range cfg.TrustedProxies {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			resolver.proxies = append(resolver.proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		resolver.proxies = append(resolver.proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return resolver, nil
}

func (c *clientIPResolver) trusted(ip string) bool {
	if c.trustAll {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIPFromRequest returns the caller address and where it was read from.
// X-Forwarded-For is walked from the right, skipping trusted hops, so entries
// a client prepends itself are ignored.
func (c *clientIPResolver) ClientIPFromRequest(r *http.Request) (string, string) {
	peer := remoteHost(r)
	if c == nil || !c.trusted(peer) {
		return peer, ipSourceRemoteAddr
	}

	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		var hops []string
		for _, hop := range strings.Split(header, ",") {
			if hop = strings.TrimSpace(hop); validIP(hop) {
				hops = append(hops, hop)
			}
		}
		for i := len(hops) - 1; i >= 0; i-- {
			if !c.trusted(hops[i]) {
				return hops[i], ipSourceXForwardedFor
			}
		}
		if len(hops) > 0 {
			return hops[0], ipSourceXForwardedFor
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); validIP(realIP) {
		return realIP, ipSourceXRealIP
	}
	return peer, ipSourceRemoteAddr
}

func validIP(value string) bool {
	_, err := netip.ParseAddr(value)
	return err == nil
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

type clientIPKey struct{}

// resolveClientIP stores the resolved caller address for the rate limiters
// and the request and audit logs.
func resolveClientIP(resolver *clientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _ := resolver.ClientIPFromRequest(r)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

// clientIP returns the address resolved by resolveClientIP, or the socket
// peer outside the middleware chain.
func clientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return remoteHost(r)
}
