package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HTTPMiddleware records RED metrics and a span for each ops API request.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{telemetry: telemetry}
}

// Middleware returns the HTTP middleware function.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.telemetry == nil || m.telemetry.tracer == nil {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()

		m.telemetry.IncrementHTTPInFlight()
		defer m.telemetry.DecrementHTTPInFlight()

		ctx, span := m.telemetry.Tracer().Start(r.Context(), "http_request")
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.user_agent", r.UserAgent()),
		)

		rw := newResponseRecorder(w)

		next.ServeHTTP(rw, r.WithContext(ctx))

		// route patterns keep lane names out of the path label's unbounded set
		route := routePattern(r)

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rw.statusCode),
			attribute.Int64("http.response_size", rw.bytesWritten),
		)

		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rw.statusCode))
		}

		m.telemetry.RecordHTTPRequest(r.Method, route, getStatusClass(rw.statusCode), time.Since(start))
	})
}

// responseRecorder captures the status code and bytes written. Only the first
// WriteHeader reaches the wrapped writer.
type responseRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)

	return n, err
}

// routePattern returns the matched chi pattern, or the raw path outside a
// chi router or before routing.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	return r.URL.Path
}

// getStatusClass returns the status class (2xx, 3xx, 4xx, 5xx) for a given status code.
func getStatusClass(statusCode int) string {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return "2xx"
	case statusCode >= http.StatusMultipleChoices && statusCode < http.StatusBadRequest:
		return "3xx"
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return "4xx"
	case statusCode >= http.StatusInternalServerError:
		return "5xx"
	default:
		return "unknown"
	}
}
