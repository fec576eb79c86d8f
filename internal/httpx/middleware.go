package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// RequestLogger writes one structured line per request and turns panics
// into 500s instead of dropped connections.
func RequestLogger(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			defer func() {
				if p := recover(); p != nil {
					log.Error().
						Str("request_id", middleware.GetReqID(r.Context())).
						Str("method", r.Method).
						Str("url", r.URL.String()).
						Interface("panic", p).
						Msg("panic recovered")
					http.Error(rec, "internal server error", http.StatusInternalServerError)
				}
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("url", r.URL.String()).
					Int("status", rec.Status()).
					Dur("elapsed", time.Since(start)).
					Msg("request completed")
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func Metrics(m *metrics.ServerMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.Requests.WithLabelValues(pattern, http.StatusText(rec.Status())).Inc()
			m.LatencyMS.WithLabelValues(pattern).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}
