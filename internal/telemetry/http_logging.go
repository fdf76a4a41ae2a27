package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/file_poller/internal/logctx"
)

// HTTPLogging writes one access log line per ops API request. Lines carry the
// chi route pattern and, for lane routes, the lane name, so they can be
// grouped the same way the request metrics are. The request id comes from the
// logger RequestID binds.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseRecorder(w)

		next.ServeHTTP(rw, r)

		ctx := r.Context()
		logger := logctx.LoggerFromContext(ctx)

		attrs := []any{
			"method", r.Method,
			"route", routePattern(r),
			"path", r.URL.Path,
			"status", rw.statusCode,
			"bytes", rw.bytesWritten,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		if lane := chi.URLParam(r, "lane"); lane != "" {
			attrs = append(attrs, "lane", lane)
		}

		switch {
		case rw.statusCode >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "ops request", attrs...)
		case rw.statusCode >= http.StatusBadRequest:
			logger.WarnContext(ctx, "ops request", attrs...)
		default:
			logger.InfoContext(ctx, "ops request", attrs...)
		}
	})
}
