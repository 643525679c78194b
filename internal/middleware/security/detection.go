package security

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"

	"moneyflow/internal/log"
)

// DetectionMetrics counts detector events.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// probe is one rule for spotting scanner traffic. It returns a short reason
// when the request matches.
type probe func(r *http.Request) string

var (
	probeFragments = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
		"<script", "javascript:", "union select", "eval(",
	}
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "scanner",
	}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

var probes = []probe{
	func(r *http.Request) string {
		target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
		for _, f := range probeFragments {
			if strings.Contains(target, f) {
				return "path:" + f
			}
		}
		return ""
	},
	func(r *http.Request) string {
		ua := strings.ToLower(r.UserAgent())
		for _, a := range scannerAgents {
			if strings.Contains(ua, a) {
				return "agent:" + a
			}
		}
		return ""
	},
	func(r *http.Request) string {
		if slices.Contains(unusualMethods, r.Method) {
			return "method:" + r.Method
		}
		return ""
	},
	func(r *http.Request) string {
		if len(r.URL.String()) > 2048 {
			return "long-url"
		}
		return ""
	},
	func(r *http.Request) string {
		if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
			return "proxy-chain"
		}
		return ""
	},
}

// Detector flags probe traffic and resolves client addresses behind
// trusted proxies.
type Detector struct {
	trusted []*net.IPNet

	suspicious atomic.Int64
	invalidIP  atomic.Int64
}

var privateNetworks = []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"}

// NewDetector trusts loopback and private networks plus extra.
func NewDetector(extra ...*net.IPNet) *Detector {
	d := &Detector{}
	for _, cidr := range privateNetworks {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("bad built-in CIDR %s: %v", cidr, err))
		}
		d.trusted = append(d.trusted, n)
	}
	d.trusted = append(d.trusted, extra...)
	return d
}

// ParseCIDRs parses a list of trusted proxy networks.
func ParseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", c, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Inspect returns the reason r looks like a probe, or "" when it does not.
func (d *Detector) Inspect(r *http.Request) string {
	for _, p := range probes {
		if reason := p(r); reason != "" {
			d.suspicious.Add(1)
			return reason
		}
	}
	return ""
}

// ExtractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	ip := net.ParseIP(peer)
	if ip == nil {
		d.invalidIP.Add(1)
		return peer
	}
	if !d.isTrusted(ip) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func (d *Detector) isTrusted(ip net.IP) bool {
	return slices.ContainsFunc(d.trusted, func(n *net.IPNet) bool { return n.Contains(ip) })
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}

// Middleware logs requests that look like probes. They are not blocked;
// the bearer check rejects them anyway.
func (d *Detector) Middleware(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSecurity)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := d.Inspect(r); reason != "" {
				logger.WarnContext(r.Context(), "Suspicious request",
					log.FieldReason, reason,
					log.FieldClientIP, d.ExtractClientIP(r),
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					log.FieldUserAgent, r.UserAgent())
			}
			next.ServeHTTP(w, r)
		})
	}
}
