package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// quietPaths are probed constantly by orchestrators; logging each hit at
// info would drown out everything else.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// Logger logs every request with structured fields: method, path, status,
// duration, response size, request ID, and remote address. Server errors
// log at error level, client errors at warn, health probes at debug.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			switch {
			case ww.status >= 500:
				level = slog.LevelError
			case ww.status >= 400:
				level = slog.LevelWarn
			case quietPaths[r.URL.Path]:
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// responseWriter captures the status code and byte count for logging.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying ResponseWriter for http.Flusher and other
// interface assertions through middleware chains.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
