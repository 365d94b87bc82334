package security

import (
	"net/http"
	"strconv"
)

type HeadersConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ContentTypeOptions    string
	ReferrerPolicy        string
	ResourcePolicy        string
	// HSTS is sent over TLS only; zero disables it.
	HSTSMaxAge            int
	HSTSSubdomains        bool
}

// DefaultHeadersConfig suits a JSON API that serves no documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		FrameOptions:          "DENY",
		ContentTypeOptions:    "nosniff",
		ReferrerPolicy:        "no-referrer",
		ResourcePolicy:        "same-site",
		HSTSMaxAge:            365 * 24 * 60 * 60,
		HSTSSubdomains:        true,
	}
}

type HeadersMiddleware struct {
	static map[string]string
	hsts   string
}

func NewHeadersMiddleware(cfg HeadersConfig) *HeadersMiddleware {
	m := &HeadersMiddleware{static: map[string]string{}}
	for name, v := range map[string]string{
		"Content-Security-Policy":      cfg.ContentSecurityPolicy,
		"X-Frame-Options":              cfg.FrameOptions,
		"X-Content-Type-Options":       cfg.ContentTypeOptions,
		"Referrer-Policy":              cfg.ReferrerPolicy,
		"Cross-Origin-Resource-Policy": cfg.ResourcePolicy,
	} {
		if v != "" {
			m.static[name] = v
		}
	}
	if cfg.HSTSMaxAge > 0 {
		m.hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
		if cfg.HSTSSubdomains {
			m.hsts += "; includeSubDomains"
		}
	}
	return m
}

func (m *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for name, v := range m.static {
			h.Set(name, v)
		}
		if r.TLS != nil && m.hsts != "" {
			h.Set("Strict-Transport-Security", m.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// NoStore marks responses as uncacheable. Balances change with every write.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
