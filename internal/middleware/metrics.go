package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lingoswap/backend/internal/metrics"
)

const unmatchedRoute = "unmatched"

// Metrics records request counts and latencies labelled by the ServeMux pattern that served
// the request. mux must be the router itself so the pattern is set on the request it sees.
func Metrics(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrap(w)

		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = unmatchedRoute
		}

		mux.ServeHTTP(wrapped, r)

		metrics.ObserveHTTP(r.Method, pattern, strconv.Itoa(wrapped.Status()), time.Since(start))
	})
}
