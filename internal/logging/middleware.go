package logging

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestMiddleware tags each request with a run id (taken from the
// X-Request-ID header when present) and logs its completion.
func RequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := WithGivenRunID(r.Context(), id)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", id)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(wrapped, r)

		args := []any{"component", "http", "method", r.Method, "path", r.URL.Path,
			"status", wrapped.statusCode, "duration", time.Since(start)}
		if wrapped.statusCode >= 500 {
			ErrorContext(ctx, "request failed", args...)
		} else {
			DebugContext(ctx, "request completed", args...)
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
