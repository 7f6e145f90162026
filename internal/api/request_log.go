package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("route", routeLabel(r.URL.Path)),
			zap.Int("status", recorder.status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client", s.clientID(r)),
		)
	})
}
