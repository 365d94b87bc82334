// Package trace tags every request with an ID and logs its outcome.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tripsplit/internal/log"
)

type ctxKey struct{}

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Tracer is the request tracing middleware.
type Tracer struct {
	clientIP func(*http.Request) string
	served   atomic.Int64
	lastUS   atomic.Int64
}

// Stats is a point-in-time view of traced traffic.
type Stats struct {
	Requests       int64
	LastDurationUS int64
}

func New(clientIP func(*http.Request) string) *Tracer {
	return &Tracer{clientIP: clientIP}
}

// Handler keeps a well-formed incoming X-Request-ID or mints a UUID, echoes
// it on the response and stores it in the request context.
func (t *Tracer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()

		id := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		took := time.Since(began)
		t.served.Add(1)
		t.lastUS.Store(took.Microseconds())

		var ip string
		if t.clientIP != nil {
			ip = t.clientIP(r)
		}
		fields := log.NewFields().
			WithComponent(log.ComponentTrace).
			WithRequestID(id).
			WithClientIP(ip).
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()).
			WithHTTPResponse(sw.status, took.Milliseconds(), sw.status < http.StatusBadRequest)
		slog.Log(r.Context(), levelFor(sw.status), "HTTP request completed", fields.ToSlice()...)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// IDFromContext returns the request ID stored by Handler, or "".
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestID adapts IDFromContext to log.RequestIDMiddleware.
func RequestID(r *http.Request) string {
	return IDFromContext(r.Context())
}

func (t *Tracer) Stats() Stats {
	return Stats{Requests: t.served.Load(), LastDurationUS: t.lastUS.Load()}
}
