package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per client IP to the given number per minute
// using a sliding window. Applied globally and, with a much lower budget,
// to the login endpoint to slow password guessing.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitByHeader limits requests per distinct value of the named header,
// so each API key gets its own budget. Requests without the header share
// one bucket, which the IP limiter already covers.
func RateLimitByHeader(headerName string, requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return r.Header.Get(headerName), nil
		}),
	)
}
