package telemetry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/italolelis/file_poller/internal/logctx"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses an upstream X-Request-ID or mints one, echoes it on the
// response and binds it to the request logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx, _ := logctx.With(r.Context(), "request_id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
