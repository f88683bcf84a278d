package middleware

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/logging"
)

var accessLogRWPool = sync.Pool{
	New: func() any { return &accessLogResponseWriter{} },
}

// accessLogResponseWriter captures the status and body size of the
// response for the access line.
type accessLogResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *accessLogResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *accessLogResponseWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// AccessLog writes one structured log line per completed request.
// Paths in skipPaths are not logged.
func AccessLog(skipPaths ...string) Middleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			lrw := accessLogRWPool.Get().(*accessLogResponseWriter)
			lrw.ResponseWriter = w
			lrw.status = http.StatusOK
			lrw.bytes = 0

			next.ServeHTTP(lrw, r)

			fields := make([]zap.Field, 0, 10)
			fields = append(fields,
				zap.String("request_id", r.Header.Get(RequestIDHeader)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("host", r.Host),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", lrw.status),
				zap.Int64("body_bytes", lrw.bytes),
				zap.Duration("response_time", time.Since(start)),
			)
			if r.URL.RawQuery != "" {
				fields = append(fields, zap.String("query", r.URL.RawQuery))
			}
			if ua := r.UserAgent(); ua != "" {
				fields = append(fields, zap.String("user_agent", ua))
			}
			logging.Info("request completed", fields...)

			lrw.ResponseWriter = nil
			accessLogRWPool.Put(lrw)
		})
	}
}
