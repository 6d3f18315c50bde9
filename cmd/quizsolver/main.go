package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/quizsolver/internal/application/orchestrator"
	"github.com/aescanero/quizsolver/internal/application/solver"
	"github.com/aescanero/quizsolver/internal/application/workers"
	"github.com/aescanero/quizsolver/internal/config"
	"github.com/aescanero/quizsolver/pkg/adapters/browser"
	eventsmemory "github.com/aescanero/quizsolver/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/quizsolver/pkg/adapters/events/redis"
	"github.com/aescanero/quizsolver/pkg/adapters/httpclient"
	"github.com/aescanero/quizsolver/pkg/adapters/llm"
	promcollector "github.com/aescanero/quizsolver/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/quizsolver/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/quizsolver/pkg/adapters/storage/redis"
	"github.com/aescanero/quizsolver/pkg/adapters/submitter"
	"github.com/aescanero/quizsolver/pkg/api/grpc"
	"github.com/aescanero/quizsolver/pkg/api/http"
	"github.com/aescanero/quizsolver/pkg/api/websocket"
	"github.com/aescanero/quizsolver/pkg/ports"
	"github.com/aescanero/quizsolver/pkg/processors"
	"github.com/aescanero/quizsolver/pkg/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

// streamMaxLen caps each Redis stream
const streamMaxLen = 10000

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting quiz solver",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := promcollector.NewCollector(registry)

	eventBus, jobStorage, closeBackend := initBackend(cfg, logger)
	defer closeBackend()

	// Outbound HTTP: attachments and answer submission
	httpClient := httpclient.New(httpclient.Config{
		Timeout:    cfg.Browser.RenderTimeout,
		MaxRetries: cfg.Solver.HTTPMaxRetries,
	})
	fetcher := httpclient.NewFetcher(httpClient, logger)
	answerSubmitter := submitter.New(httpClient, cfg.Solver.SubmitMaxRetries, logger)

	renderer, err := browser.NewRenderer(browser.Config{
		Mode:       cfg.Browser.Mode,
		ChromePath: cfg.Browser.ChromePath,
		Wait:       cfg.Browser.RenderWait,
		Timeout:    cfg.Browser.RenderTimeout,
	}, fetcher, metricsCollector, logger)
	if err != nil {
		logger.Fatal("failed to create renderer", zap.Error(err))
	}

	llmCfg := llmConfig(cfg)
	llmCfg.Metrics = metricsCollector
	llmCfg.Logger = logger
	llmClient, err := llm.NewClient(llmCfg)
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}

	quizSolver := solver.New(solver.Config{
		TimeBudget:         cfg.Solver.TimeBudget,
		MaxAnswerTries:     cfg.Solver.MaxAnswerTries,
		MaxAttachments:     cfg.Solver.MaxAttachments,
		MaxAttachmentBytes: cfg.Solver.MaxAttachmentBytes,
		PromptContextChars: cfg.Solver.PromptContextChars,
		Model:              llmCfg.Model,
		Temperature:        cfg.LLM.Temperature,
		MaxTokens:          cfg.LLM.MaxTokens,
	}, solver.Dependencies{
		Renderer:   renderer,
		Downloader: fetcher,
		Processor:  processors.NewRegistry(),
		LLM:        llmClient,
		Submitter:  answerSubmitter,
		Metrics:    metricsCollector,
	}, logger)

	// Initialize application components
	validator := orchestrator.NewValidator(cfg.SecretKey, cfg.Email)

	orchestratorMgr := orchestrator.NewManager(
		eventBus,
		jobStorage,
		metricsCollector,
		validator,
		logger,
		cfg.Solver.TimeBudget,
	)

	workerPool := workers.NewPool(workers.Config{
		Size:                cfg.Workers.PoolSize,
		QueueSize:           cfg.Workers.QueueSize,
		HealthCheckInterval: cfg.Workers.HealthCheckInterval,
	}, eventBus, jobStorage, orchestratorMgr, quizSolver, metricsCollector, logger)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:      cfg.HTTPPort,
		SecretKey: cfg.SecretKey,
		Jobs:      orchestratorMgr,
		Health:    workerPool.Health(),
		Reports:   report.NewGenerator(report.DefaultConfig()),
		Gatherer:  registry,
		Logger:    logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, orchestratorMgr, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:    cfg.GRPCPort,
		Checker: workerPool.Health(),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("quiz solver started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", llmCfg.Model),
		zap.String("browser_mode", cfg.Browser.Mode),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	// Stop intake first, then cancel running jobs and drain the workers
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := renderer.Close(); err != nil {
		logger.Error("renderer close error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	logger.Info("quiz solver shut down complete")
}

// initBackend creates the event bus and job storage for the configured backend
func initBackend(cfg *config.Config, logger *zap.Logger) (ports.EventBus, ports.JobStorage, func()) {
	if cfg.StorageBackend == "memory" {
		logger.Warn("using in-memory storage, jobs are lost on restart")
		bus := eventsmemory.NewInMemoryEventBus()
		return bus, storagememory.NewInMemoryJobStorage(), func() { _ = bus.Close() }
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	hostname, _ := os.Hostname()
	bus := eventsredis.NewStreamsEventBus(
		redisClient,
		fmt.Sprintf("quizsolver-%s-%d", hostname, os.Getpid()),
		streamMaxLen,
		logger,
	)
	storage := storageredis.NewJobStorage(redisClient, cfg.JobTTL, logger)

	return bus, storage, func() {
		if err := bus.Close(); err != nil {
			logger.Error("event bus close error", zap.Error(err))
		}
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}
}

// llmConfig selects the credentials and model of the configured provider
func llmConfig(cfg *config.Config) *llm.Config {
	out := &llm.Config{
		Provider:   cfg.LLM.Provider,
		Timeout:    cfg.LLM.RequestTimeout,
		MaxRetries: cfg.Solver.HTTPMaxRetries,
	}

	switch cfg.LLM.Provider {
	case "anthropic":
		out.APIKey = cfg.LLM.AnthropicAPIKey
		out.Model = cfg.LLM.AnthropicModel
	case "ollama":
		out.BaseURL = cfg.LLM.OllamaURL
		out.Model = cfg.LLM.OllamaModel
	default:
		out.APIKey = cfg.LLM.OpenAIAPIKey
		out.Model = cfg.LLM.OpenAIModel
		out.BaseURL = cfg.LLM.OpenAIBaseURL
	}

	return out
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
