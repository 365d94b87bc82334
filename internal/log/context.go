package log

import (
	"context"
	"log/slog"
	"net/http"
)

type loggerKey struct{}

func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by Middleware, falling back to a
// logger over slog.Default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// Middleware makes logger available to handlers via FromContext.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware scopes the context logger to the request ID returned
// by id. It must run inside Middleware.
func RequestIDMiddleware(id func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rid := id(r); rid != "" {
				scoped := FromContext(r.Context()).With(FieldRequestID, rid)
				r = r.WithContext(NewContext(r.Context(), scoped))
			}
			next.ServeHTTP(w, r)
		})
	}
}
