package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dunamismax/shrinkit/internal/id"
	"github.com/dunamismax/shrinkit/internal/queue"
	"github.com/dunamismax/shrinkit/internal/storage"
	"github.com/dunamismax/shrinkit/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes    = 25 << 20
	defaultDownloadURLExpiry = 15 * time.Minute
	defaultClientIDHeader    = "X-Client-ID"
)

type Server struct {
	logger            *zap.Logger
	queueClient       queueEnqueuer
	sessions          store.SessionStore
	objects           storage.ObjectStore
	rateLimiter       RateLimiter
	clientIDHeader    string
	maxUploadBytes    int64
	downloadURLExpiry time.Duration
	metrics           *metrics
	tracer            trace.Tracer
	now               func() time.Time
	newID             func() string
	mux               *http.ServeMux
	handler           http.Handler
}

type queueEnqueuer interface {
	EnqueueShrinkImage(ctx context.Context, payload queue.ShrinkImagePayload) (*asynq.TaskInfo, error)
}

type Options struct {
	RateLimiter       RateLimiter
	ClientIDHeader    string
	MaxUploadBytes    int64
	DownloadURLExpiry time.Duration
	Tracer            trace.Tracer
}

func NewServer(logger *zap.Logger, queueClient queueEnqueuer, sessions store.SessionStore, objects storage.ObjectStore, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ClientIDHeader == "" {
		opts.ClientIDHeader = defaultClientIDHeader
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.DownloadURLExpiry <= 0 {
		opts.DownloadURLExpiry = defaultDownloadURLExpiry
	}

	s := &Server{
		logger:            logger.Named("api"),
		queueClient:       queueClient,
		sessions:          sessions,
		objects:           objects,
		rateLimiter:       opts.RateLimiter,
		clientIDHeader:    opts.ClientIDHeader,
		maxUploadBytes:    opts.MaxUploadBytes,
		downloadURLExpiry: opts.DownloadURLExpiry,
		metrics:           newMetrics(),
		tracer:            opts.Tracer,
		now:               func() time.Time { return time.Now().UTC() },
		newID:             id.New,
		mux:               http.NewServeMux(),
	}
	s.routes()
	s.handler = s.withTracing(s.metrics.withHTTPMetrics(s.withRequestLog(s.withRateLimit(s.mux))))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", tagSession(s.handleGetSession))
	s.mux.HandleFunc("PUT /v1/sessions/{id}/source", tagSession(s.handleReplaceSource))
	s.mux.HandleFunc("PATCH /v1/sessions/{id}/settings", tagSession(s.handleEditSettings))
	s.mux.HandleFunc("POST /v1/sessions/{id}/process", tagSession(s.handleProcess))
	s.mux.HandleFunc("GET /v1/sessions/{id}/download", tagSession(s.handleDownload))
	s.mux.HandleFunc("GET /v1/sessions/{id}/preview", tagSession(s.handlePreview))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.objects.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
