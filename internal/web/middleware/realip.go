package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// proxySet is the parsed form of TRUSTED_PROXIES.
type proxySet []*net.IPNet

// parseProxies accepts CIDRs and bare IPs; anything else is logged and skipped.
func parseProxies(entries []string) proxySet {
	var set proxySet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if _, network, err := net.ParseCIDR(entry); err == nil {
			set = append(set, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", entry)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		set = append(set, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return set
}

func (s proxySet) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, network := range s {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// TrustedRealIP rewrites RemoteAddr to the client address from X-Real-IP or
// the first X-Forwarded-For hop, but only when the connection comes from a
// trusted proxy. Otherwise RemoteAddr is reduced to the bare peer IP. Rate
// limiting and logging both key on the result.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	proxies := parseProxies(trusted)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer := extractIP(r.RemoteAddr)
			if peer != nil {
				r.RemoteAddr = peer.String()
			}

			if proxies.contains(peer) {
				if ip := forwardedIP(r.Header); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// forwardedIP returns the client address a proxy reported, if valid.
func forwardedIP(h http.Header) net.IP {
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		return net.ParseIP(rip)
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return net.ParseIP(strings.TrimSpace(first))
	}
	return nil
}

// extractIP parses an IP address from a host:port string or plain IP.
func extractIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
