package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/shrinkit/internal/config"
	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/dunamismax/shrinkit/internal/pipeline"
	"github.com/dunamismax/shrinkit/internal/queue"
	"github.com/dunamismax/shrinkit/internal/store"
	"github.com/dunamismax/shrinkit/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const recordTimeout = 30 * time.Second

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type objectRemover interface {
	RemoveObject(ctx context.Context, objectKey string) error
}

// Server executes queued runs and records their outcome on the session.
type Server struct {
	logger        *zap.Logger
	server        *asynq.Server
	sem           chan struct{}
	sessions      store.SessionStore
	processor     *pipeline.Processor
	objects       objectRemover
	webhookClient webhookSender
	metrics       *metrics
	tracer        trace.Tracer
	now           func() time.Time
}

type Dependencies struct {
	Sessions  store.SessionStore
	Processor *pipeline.Processor
	// Objects, when set, deletes outputs of runs that lost the race to
	// record their result.
	Objects objectRemover
	Webhook webhookSender
}

func NewServer(logger *zap.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Dependencies) (*Server, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("worker")

	s := newServer(logger, workerCfg.MaxActiveJobs, deps)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			Logger:   logger.Named("asynq").Sugar(),
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID, _ := asynq.GetTaskID(ctx)
				logger.Warn("task failed",
					zap.String("type", task.Type()),
					zap.String("task_id", taskID),
					zap.Error(err),
				)
			}),
		},
	)
	return s, nil
}

func newServer(logger *zap.Logger, maxActive int, deps Dependencies) *Server {
	return &Server{
		logger:        logger,
		sem:           make(chan struct{}, max(1, maxActive)),
		sessions:      deps.Sessions,
		processor:     deps.Processor,
		objects:       deps.Objects,
		webhookClient: deps.Webhook,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("shrinkit/worker"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

// Start runs the worker in the background; used when embedded in the API.
func (s *Server) Start() error {
	return s.server.Start(s.mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeShrinkImage, s.handleShrinkImage)
	return mux
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleShrinkImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()

	payload, err := queue.ParseShrinkImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.shrink_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("session.id", payload.SessionID),
		attribute.String("run.id", payload.RunID),
	)
	defer span.End()

	log := s.logger.With(zap.String("session_id", payload.SessionID), zap.String("run_id", payload.RunID))

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for run slot: %w", ctx.Err())
	}
	s.metrics.activeRuns.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeRuns.Dec()
	}()

	session, ok, err := s.sessions.Get(ctx, payload.SessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load session")
		return fmt.Errorf("load session: %w", err)
	}
	if !ok || session.State != domain.StateProcessing || session.RunID != payload.RunID || session.Source == nil {
		s.metrics.staleRunsTotal.Inc()
		log.Info("dropping stale run", zap.Bool("session_found", ok))
		span.SetStatus(codes.Ok, "stale run")
		return nil
	}

	run := domain.Run{ID: session.RunID, Source: *session.Source, Settings: session.Settings}
	span.SetAttributes(
		attribute.Int("run.width", run.Settings.Width),
		attribute.Int("run.height", run.Settings.Height),
		attribute.Int("run.quality", run.Settings.Quality),
		attribute.Bool("run.remove_background", run.Settings.RemoveBackground),
	)
	log.Info("processing run",
		zap.Int("width", run.Settings.Width),
		zap.Int("height", run.Settings.Height),
		zap.Int("quality", run.Settings.Quality),
		zap.Bool("remove_background", run.Settings.RemoveBackground),
	)

	out, runErr := s.processor.Process(ctx, session.ID, run)

	// The outcome is recorded even when the task deadline has passed, so a
	// session never stays in processing.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	updated, err := store.Mutate(recordCtx, s.sessions, session.ID, func(current *domain.Session) error {
		if runErr != nil {
			return pipeline.Fail(current, run.ID, runErr, s.now())
		}
		return pipeline.Complete(current, run.ID, out, s.now())
	})
	if errors.Is(err, pipeline.ErrStaleRun) || errors.Is(err, store.ErrSessionNotFound) {
		s.metrics.staleRunsTotal.Inc()
		log.Info("run superseded before its result was recorded")
		s.discardOutput(recordCtx, log, out)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record outcome")
		s.discardOutput(recordCtx, log, out)
		return fmt.Errorf("record run outcome: %w", err)
	}

	s.observe(run, updated, startedAt)
	s.notify(recordCtx, log, updated, run.ID)

	if runErr != nil {
		log.Warn("run failed", zap.String("reason", updated.FailureReason), zap.Error(runErr))
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run failed")
		return fmt.Errorf("run pipeline: %w", runErr)
	}

	log.Info("run completed",
		zap.String("mime_type", out.MIMEType),
		zap.Int("bytes", out.Bytes),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) observe(run domain.Run, session domain.Session, startedAt time.Time) {
	removeBG := strconv.FormatBool(run.Settings.RemoveBackground)
	state := string(session.State)
	s.metrics.runsTotal.WithLabelValues(removeBG, state).Inc()
	s.metrics.runDuration.WithLabelValues(removeBG, state).Observe(time.Since(startedAt).Seconds())

	if session.State != domain.StateReady || session.Processed == nil {
		return
	}
	s.metrics.pixelsProcessedTotal.Add(float64(run.Source.Width) * float64(run.Source.Height))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved(run.Source.Bytes, session.Processed.Bytes)))
}

func bytesSaved(sourceBytes, outputBytes int) int {
	return max(0, sourceBytes-outputBytes)
}

func (s *Server) notify(ctx context.Context, log *zap.Logger, session domain.Session, runID string) {
	if session.WebhookURL == "" || s.webhookClient == nil {
		return
	}
	event, body, ok := webhook.EventFor(session, runID)
	if !ok {
		return
	}
	if err := s.webhookClient.Send(ctx, session.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailuresTotal.Inc()
		log.Warn("webhook delivery failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *Server) discardOutput(ctx context.Context, log *zap.Logger, out domain.ProcessedImage) {
	if s.objects == nil || out.ObjectKey == "" {
		return
	}
	if err := s.objects.RemoveObject(ctx, out.ObjectKey); err != nil {
		log.Warn("discard superseded output failed", zap.String("object_key", out.ObjectKey), zap.Error(err))
	}
}
