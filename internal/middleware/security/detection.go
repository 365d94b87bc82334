package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

type DetectionStats struct {
	SuspiciousRequests int64
	BlockedRequests    int64
}

// Detector flags probing traffic and resolves client addresses behind
// trusted proxies.
type Detector struct {
	suspicious atomic.Int64
	blocked    atomic.Int64
	proxies    []*net.IPNet
}

var (
	probeMarkers = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
		"<script", "javascript:", "eval(", "union select",
	}
	scannerAgents  = []string{"sqlmap", "nikto", "nmap", "masscan", "gobuster", "dirb"}
	blockedMethods = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}
)

const (
	maxURLLength    = 2048
	maxForwardedFor = 5
)

var privateRanges = []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range privateRanges {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// rejection returns the status a request must be refused with, or 0.
func rejection(r *http.Request) int {
	if blockedMethods[r.Method] {
		return http.StatusMethodNotAllowed
	}
	if len(r.URL.String()) > maxURLLength {
		return http.StatusRequestURITooLong
	}
	return 0
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// DetectSuspiciousRequest reports whether r looks like a probe and counts it.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	hit := rejection(r) != 0 ||
		containsAny(strings.ToLower(r.URL.Path), probeMarkers) ||
		containsAny(strings.ToLower(r.URL.RawQuery), probeMarkers) ||
		containsAny(strings.ToLower(r.UserAgent()), scannerAgents) ||
		strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxForwardedFor
	if hit {
		d.suspicious.Add(1)
	}
	return hit
}

// Middleware logs suspicious requests. Only blocked methods and oversized
// URLs are refused.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !d.DetectSuspiciousRequest(r) {
			next.ServeHTTP(w, r)
			return
		}
		slog.WarnContext(r.Context(), "Suspicious request",
			"component", "security",
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", d.ExtractClientIP(r),
			"user_agent", r.UserAgent())

		if status := rejection(r); status != 0 {
			d.blocked.Add(1)
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP trusts X-Forwarded-For and X-Real-IP only from a trusted peer.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if ip := net.ParseIP(peer); ip == nil || !d.trusted(ip) {
		return peer
	}

	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		candidate = strings.TrimSpace(candidate)
		if net.ParseIP(candidate) != nil {
			return candidate
		}
	}
	return peer
}

func (d *Detector) trusted(ip net.IP) bool {
	for _, n := range d.proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *Detector) AddTrustedProxy(cidr string) error {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
	}
	d.proxies = append(d.proxies, n)
	return nil
}

func (d *Detector) GetMetrics() DetectionStats {
	return DetectionStats{
		SuspiciousRequests: d.suspicious.Load(),
		BlockedRequests:    d.blocked.Load(),
	}
}
