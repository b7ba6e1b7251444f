package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gnan700/splitledger/internal/metrics"
)

// Metrics records request counts and latencies per route.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)

		next.ServeHTTP(rec, r)

		rt := route(r)
		metrics.HTTPRequests.WithLabelValues(r.Method, rt, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, rt).Observe(time.Since(start).Seconds())
	})
}
