package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// trustedProxies is a set of networks whose forwarding headers are honoured.
type trustedProxies []*net.IPNet

// parseTrustedProxies accepts CIDRs and bare addresses. Invalid entries are
// logged and ignored.
func parseTrustedProxies(entries []string) trustedProxies {
	var nets trustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 128
				if ip.To4() != nil {
					ip, bits = ip.To4(), 32
				}
				nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
				continue
			}
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", entry, "error", err)
			continue
		}
		nets = append(nets, network)
	}
	return nets
}

func (t trustedProxies) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, network := range t {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// forwardedIP resolves the client address from the forwarding headers of r,
// or returns nil. Headers are only consulted when the connection comes from
// a trusted proxy. X-Forwarded-For is walked from the right, skipping
// trusted hops, so a client cannot spoof its address by prepending entries.
func (t trustedProxies) forwardedIP(r *http.Request) net.IP {
	if !t.contains(parseHostIP(r.RemoteAddr)) {
		return nil
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !t.contains(ip) || i == 0 {
				return ip
			}
		}
	}
	return net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP")))
}

// TrustedRealIP rewrites RemoteAddr to the client address resolved from
// forwarding headers of trusted proxies. Requests from anywhere else keep
// their connection address.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	trusted := parseTrustedProxies(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(trusted) > 0 {
				if ip := trusted.forwardedIP(r); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseHostIP parses an IP address from a host:port string or plain IP.
func parseHostIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
