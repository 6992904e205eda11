package middleware

import (
	"context"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// responseWriter records the status and size of the response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// requestInfo collects details filled in by inner handlers for the request log.
type requestInfo struct {
	client string
}

const requestInfoKey contextKey = "requestInfo"

func setClientName(ctx context.Context, name string) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.client = name
	}
}

// Logging logs one record per request once the response is written. The
// client name is filled in by the authentication middleware further down.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		info := &requestInfo{}
		ctx := context.WithValue(r.Context(), requestInfoKey, info)
		next.ServeHTTP(recorder, r.WithContext(ctx))

		log.FromContext(ctx).WithName("http-api").Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"client", info.client,
			"status", recorder.statusCode,
			"bytes", recorder.written,
			"duration_ms", time.Since(started).Milliseconds(),
			"remote_addr", r.RemoteAddr)
	})
}
