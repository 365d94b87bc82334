package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"tripsplit/internal/cache"
	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/metrics"
	"tripsplit/internal/middleware/ratelimit"
	"tripsplit/internal/middleware/security"
	"tripsplit/internal/middleware/trace"
)

const cacheCleanupInterval = 10 * time.Minute

// Options configures NewServer. The zero value is usable.
type Options struct {
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	Currency           string
	// Ready backs /readyz; nil means always ready.
	Ready func(context.Context) error
	// Caches are cleaned of expired entries while the server runs.
	Caches []cache.Cleaner
}

type Server struct {
	http.Server
	ledger      Ledger
	metrics     *metrics.Metrics
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	caches      *cache.Manager
	currency    string
	ready       func(context.Context) error

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentHTTP, Handler: slog.Default().Handler()})
	}
	currency := opts.Currency
	if currency == "" {
		currency = core.DefaultCurrency
	}

	s := &Server{
		ledger:      ledger,
		metrics:     opts.Metrics,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:    security.NewDetector(),
		caches:      cache.NewManager(),
		currency:    currency,
		ready:       opts.Ready,
	}
	for _, c := range opts.Caches {
		s.caches.Register(c)
	}
	s.caches.StartCleanup(cacheCleanupInterval)

	mux := http.NewServeMux()
	s.route(mux, "/api/people", s.handlePeople)
	s.route(mux, "/api/expenses", s.handleExpenses)
	s.route(mux, "/api/balances", s.handleBalances)
	s.route(mux, "/api/balances/explain", s.handleExplain)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not found").Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux, logger, opts.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Middleware(pattern)(security.NoStore(h)))
}

// middleware wraps h, outermost first: trace, logger context, suspicious
// request detection, security headers, CORS, write rate limiting.
func (s *Server) middleware(h http.Handler, logger *log.Logger, origins []string) http.Handler {
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.WritesOnly, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldComponent, log.ComponentRateLimit,
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
	})(h)

	if len(origins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", trace.HeaderRequestID},
			ExposedHeaders: []string{trace.HeaderRequestID, "Retry-After"},
			MaxAge:         600,
		}).Handler(h)
	}

	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(logger)(h)
	return trace.New(s.detector.ExtractClientIP).Handler(h)
}

// Shutdown stops background cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
