package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/shrinkit/internal/ratelimit"
	"go.uber.org/zap"
)

type RateLimiter = ratelimit.Limiter

// withRateLimit throttles writes per client and route. Limiter outages fail
// open.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}

		route := routeLabel(r.URL.Path)
		subject := s.clientID(r) + ":" + route

		decision, err := s.rateLimiter.Allow(r.Context(), subject)
		if err != nil {
			s.logger.Warn("rate limiter check failed", zap.String("subject", subject), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Kind: "rate_limited"})
	})
}

func (s *Server) clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(s.clientIDHeader)); id != "" {
		return id
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "anonymous"
}

func shouldRateLimit(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/v1/sessions")
}
