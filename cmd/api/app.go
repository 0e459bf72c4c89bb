package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/expertshelf/hub/internal/api/handlers"
	"github.com/expertshelf/hub/internal/api/middleware"
	"github.com/expertshelf/hub/internal/config"
	"github.com/expertshelf/hub/internal/observability"
	"github.com/expertshelf/hub/internal/repository"
	"github.com/expertshelf/hub/internal/service"
	"github.com/expertshelf/hub/internal/workers"
	"github.com/expertshelf/hub/pkg/workerpool"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	cache          *service.EmbeddingCache
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

// routes groups the handlers mounted by newHTTPServer.
type routes struct {
	health          *handlers.HealthHandler
	recommendations *handlers.RecommendationsHandler
	activity        *handlers.ActivityHandler
	topicIndex      *handlers.TopicIndexHandler
	metrics         http.Handler
}

// setupMetrics creates the meter provider and hub metrics when metrics are enabled.
// When NewMeterProvider returns nil (unsupported or disabled exporter), everything is nil (metrics disabled).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, *observability.Metrics, http.Handler, error) {
	mp, handler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("hub"))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metrics, handler, nil
}

// NewApp builds and wires all components. It does not start the HTTP server, River or the
// index warm-up; call Run to start and block until shutdown or failure.
//
//nolint:funlen // linear wiring
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err            error
		meterProvider  *sdkmetric.MeterProvider
		metrics        *observability.Metrics
		metricsHandler http.Handler
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metrics, metricsHandler, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after tracer provider error", "error", err2)
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Installed unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(slog.Default().Handler())))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	var (
		recommenderMetrics observability.RecommenderMetrics
		embeddingMetrics   observability.EmbeddingMetrics
		cacheMetrics       observability.CacheMetrics
		apiMetrics         observability.APIMetrics
	)

	if metrics != nil {
		recommenderMetrics = metrics.Recommender
		embeddingMetrics = metrics.Embeddings
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
	}

	cleanup := func() {
		if err := shutdownObservability(context.Background(), tracerProvider, meterProvider); err != nil {
			slog.Error("shutdown observability after init error", "error", err)
		}
	}

	encoder, err := newEncoder(context.Background(), cfg)
	if err != nil {
		cleanup()

		return nil, err
	}

	var memo *lru.Cache[string, []float32]

	if cfg.EmbeddingMemoSize > 0 {
		memo, err = lru.New[string, []float32](cfg.EmbeddingMemoSize)
		if err != nil {
			cleanup()

			return nil, fmt.Errorf("create label embedding memo: %w", err)
		}
	}

	model := cfg.EmbeddingModelName()

	embedder := service.NewTextEmbedder(service.TextEmbedderParams{
		Encoder:      encoder,
		Pool:         workerpool.New(cfg.EmbeddingWorkers),
		BatchSize:    cfg.EmbeddingBatchSize,
		Model:        model,
		RateLimiter:  newRateLimiter(cfg),
		Memo:         memo,
		Metrics:      embeddingMetrics,
		CacheMetrics: cacheMetrics,
		Logger:       slog.Default(),
	})

	topicsRepo := repository.NewTopicsRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	var vectorStore service.TopicVectorStore
	if cfg.EmbeddingPersist {
		vectorStore = repository.NewEmbeddingsRepository(db)
	}

	cache := service.NewEmbeddingCache(service.EmbeddingCacheParams{
		Corpus:       topicsRepo,
		Embedder:     embedder,
		Store:        vectorStore,
		Model:        model,
		Dimensions:   cfg.EmbeddingDimensions,
		BuildTimeout: cfg.IndexBuildTimeout,
		Metrics:      recommenderMetrics,
		Logger:       slog.Default(),
	})

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewIndexRebuildWorker(cache, cfg.IndexBuildTimeout, recommenderMetrics))

	// One rebuild at a time per process; concurrent builds are coalesced by the cache anyway.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			service.IndexQueueName: {MaxWorkers: 1},
		},
		Workers:      riverWorkers,
		ErrorHandler: &workers.ErrorHandler{},
		MaxAttempts:  cfg.IndexRebuildMaxAttempts,
	})
	if err != nil {
		cleanup()

		return nil, fmt.Errorf("create River client: %w", err)
	}

	activityService := service.NewActivityService(activityRepo, recommenderMetrics, slog.Default())

	catalogService := service.NewCatalogService(service.CatalogServiceParams{
		Repo:     topicsRepo,
		Inserter: riverClient,
		Cache:    cache,
		Metrics:  recommenderMetrics,
		Logger:   slog.Default(),
	})

	recommendationService := service.NewRecommendationService(service.RecommendationServiceParams{
		Profiles:       service.NewProfileBuilder(cache, activityRepo, cfg.HistoryWindow, recommenderMetrics, slog.Default()),
		Activity:       activityRepo,
		Content:        topicsRepo,
		Recorder:       activityService,
		Cache:          cache,
		Sampler:        service.NewSampler(cfg.SampleSeed),
		CandidateLimit: cfg.CandidateLimit,
		DefaultTopK:    cfg.DefaultTopK,
		MaxTopK:        cfg.MaxTopK,
		Metrics:        recommenderMetrics,
		Logger:         slog.Default(),
	})

	server := newHTTPServer(cfg, routes{
		health:          handlers.NewHealthHandler(db),
		recommendations: handlers.NewRecommendationsHandler(recommendationService),
		activity:        handlers.NewActivityHandler(activityService),
		topicIndex:      handlers.NewTopicIndexHandler(cache, catalogService),
		metrics:         metricsHandler,
	}, apiMetrics, meterProvider, tracerProvider)

	slog.Info("topic index configured",
		"provider", cfg.EmbeddingProvider,
		"model", model,
		"dimensions", cfg.EmbeddingDimensions,
		"persist", cfg.EmbeddingPersist,
	)

	if !cfg.SemanticEmbeddings() {
		slog.Warn("embedding provider is a lexical fallback; set EMBEDDING_PROVIDER=tei or a hosted provider for semantic ranking",
			"provider", cfg.EmbeddingProvider)
	}

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		cache:          cache,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and /metrics, API key on /v1/).
// Handler chain: RequestID -> otelhttp(Logging(MaxBody(mux))) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	r routes,
	apiMetrics observability.APIMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", r.health.Check)

	if r.metrics != nil {
		public.Handle("GET /metrics", r.metrics)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/users/{user_id}/recommendations", r.recommendations.Get)
	protected.HandleFunc("POST /v1/activity", r.activity.Create)
	protected.HandleFunc("GET /v1/admin/topic-index", r.topicIndex.Status)
	protected.HandleFunc("POST /v1/admin/topic-index/invalidate", r.topicIndex.Invalidate)
	protected.HandleFunc("DELETE /v1/topics/{id}", r.topicIndex.DeleteTopic)

	mux := http.NewServeMux()
	mux.Handle("/v1/", middleware.Auth(cfg.APIKey)(protected))
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	limited := middleware.MaxBody(cfg.MaxRequestBodyBytes, apiMetrics)(mux)

	// Logging runs inside otelhttp so r.Context() has the span when we log.
	handler := otelhttp.NewHandler(middleware.Logging(limited), "hub-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, warms the topic index when configured, then blocks
// until ctx is cancelled (e.g. signal) or a component fails. It cancels the internal River
// context before returning so River, the warm-up and the queue depth poller stop. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.metrics != nil {
		go workers.PollRebuildQueueDepth(riverCtx, a.db, a.metrics.Recommender)
	}

	if a.cfg.IndexWarmOnStart {
		go a.warmIndex(riverCtx)
	}

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// warmIndex builds the topic index in the background. A failure is logged; the first
// recommendation request retries the build.
func (a *App) warmIndex(ctx context.Context) {
	started := time.Now()

	idx, err := a.cache.EnsureLoaded(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("topic index warm-up failed", "error", err)
		}

		return
	}

	slog.Info("topic index warmed",
		"topic_count", idx.Len(),
		"dimensions", idx.Dimensions(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
		first = err
	}

	if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
		if first == nil {
			first = err
		} else {
			slog.Error("shutdown meter provider", "error", err)
		}
	}

	return first
}

// Shutdown stops the server and River in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
