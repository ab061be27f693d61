package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealIP resolves the client address. Forwarding headers are honoured only
// when the direct peer is one of the trusted proxies; the resolved address is
// stored in X-Real-IP for logging and rate limiting.
type RealIP struct {
	trusted []netip.Prefix
}

// NewRealIP parses trustedProxies, which may mix single addresses
// ("192.168.1.1") and CIDRs ("10.0.0.0/8"). Unparseable entries are skipped.
func NewRealIP(trustedProxies []string) *RealIP {
	m := &RealIP{}
	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(proxy); err == nil {
			m.trusted = append(m.trusted, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(proxy); err == nil {
			m.trusted = append(m.trusted, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return m
}

// Handler returns the middleware handler.
func (m *RealIP) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del("X-Real-IP")
		if ip := m.clientIP(r); ip != "" {
			r.Header.Set("X-Real-IP", ip)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RealIP) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !m.trustedPeer(peer) {
		return peer
	}

	// Cloudflare's header takes priority
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return peer
}

func (m *RealIP) trustedPeer(peer string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteHost strips the port from RemoteAddr when present.
func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
