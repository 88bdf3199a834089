package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// HTTPMiddleware logs every HTTP exchange. The response writer is wrapped
// with chi's WrapResponseWriter, which keeps http.Flusher available for event
// streams.
func HTTPMiddleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := ContextWithRequestID(r.Context(), requestID)
			r = r.WithContext(ctx)

			reqLogger := logger.WithFields(
				String("request_id", requestID),
				String("method", r.Method),
				String("path", r.URL.Path),
				String("remote_addr", r.RemoteAddr),
			)
			reqLogger.Debug("HTTP request started")

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqLogger.Info("HTTP request completed",
				Int("status", status),
				Int("bytes", ww.BytesWritten()),
				Duration("duration", time.Since(start)),
			)
		})
	}
}
