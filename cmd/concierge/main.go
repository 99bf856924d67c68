package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stayline/concierge/internal/adapter/extract"
	cchttp "github.com/stayline/concierge/internal/adapter/http"
	"github.com/stayline/concierge/internal/adapter/litellm"
	"github.com/stayline/concierge/internal/adapter/memstore"
	ccnats "github.com/stayline/concierge/internal/adapter/nats"
	"github.com/stayline/concierge/internal/adapter/postgres"
	"github.com/stayline/concierge/internal/adapter/qdrant"
	"github.com/stayline/concierge/internal/adapter/redismem"
	"github.com/stayline/concierge/internal/adapter/ristretto"
	"github.com/stayline/concierge/internal/adapter/ws"
	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/logger"
	"github.com/stayline/concierge/internal/middleware"
	"github.com/stayline/concierge/internal/port/memorystore"
	"github.com/stayline/concierge/internal/port/messagequeue"
	"github.com/stayline/concierge/internal/resilience"
	"github.com/stayline/concierge/internal/service"
	"github.com/stayline/concierge/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"auth_enabled", cfg.Auth.Enabled,
	)

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := ccnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	vectors, err := qdrant.New(ctx, qdrant.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		VectorSize: cfg.Qdrant.VectorSize,
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	defer func() { _ = vectors.Close() }()

	// Conversation memory: Redis when configured, otherwise in-process.
	var memory memorystore.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		memory = redismem.New(rdb, cfg.Redis.TTL)
		slog.Info("conversation memory backed by redis", "addr", cfg.Redis.Addr)
	} else {
		memory = memstore.New()
		slog.Info("conversation memory in process")
	}

	ttsCache, err := ristretto.New(cfg.TTSCache.MaxBytes)
	if err != nil {
		return fmt.Errorf("tts cache: %w", err)
	}
	defer ttsCache.Close()

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey,
		litellm.WithModels(cfg.LiteLLM.ChatModel, cfg.LiteLLM.EmbedModel,
			cfg.LiteLLM.TranscribeModel, cfg.LiteLLM.SpeechModel))
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---

	authSvc := service.NewAuthService(&cfg.Auth)
	retrievalSvc := service.NewRetrievalService(llmClient, vectors, &cfg.Retrieval)
	bookings := postgres.NewStore(pool)

	tools := service.NewToolRegistry()
	service.RegisterBuiltins(tools, queue, bookings, retrievalSvc)

	orch := service.NewOrchestrator(llmClient, memory, retrievalSvc, tools, cfg)
	ingestSvc := service.NewIngestService(queue, llmClient, vectors, extract.Text, &cfg.Ingest)
	speechSvc := service.NewSpeechService(llmClient, llmClient, ttsCache, cfg)
	opsSvc := service.NewOpsService(bookings)

	// --- Queue consumers ---

	cancelIngest, err := queue.Subscribe(ctx, messagequeue.SubjectIngestJob, ingestSvc.HandleJob)
	if err != nil {
		return fmt.Errorf("ingest subscriber: %w", err)
	}
	defer cancelIngest()

	cancelOps, err := queue.Subscribe(ctx, "ops.>", opsSvc.HandleTicket)
	if err != nil {
		return fmt.Errorf("ops subscriber: %w", err)
	}
	defer cancelOps()

	// --- HTTP ---

	voice := ws.NewGateway(speechSvc, orch, cfg)
	handlers := cchttp.NewHandlers(orch, ingestSvc, speechSvc, llmClient, cfg)

	r := chi.NewRouter()
	r.Use(cchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(cchttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Auth(authSvc, cfg.Auth.Enabled))

	cchttp.MountRoutes(r, handlers, voice.HandleVoice)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(r, "concierge"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // voice connections stream indefinitely
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
