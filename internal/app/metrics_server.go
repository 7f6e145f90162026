package app

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServeMetrics exposes handler on addr in the background. The returned func
// stops the listener. An empty addr serves nothing.
func ServeMetrics(addr string, handler http.Handler, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() { _ = srv.Close() }
}
