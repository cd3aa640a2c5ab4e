package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomrelay/internal/core/services"
	httphandlers "roomrelay/internal/handlers/http"
	"roomrelay/internal/infrastructure/middleware"
	"roomrelay/internal/infrastructure/monitoring"
	repositories "roomrelay/internal/infrastructure/repositories"
	wsignal "roomrelay/internal/infrastructure/signal"
	"roomrelay/pkg/batch"
	"roomrelay/pkg/config"
	"roomrelay/pkg/logger"
	"roomrelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Try multiple config paths
	cfg, configPath, err := config.LoadFirst(
		"configs/config.yaml",
		"./configs/config.yaml",
		"/root/configs/config.yaml",
		"config.yaml",
	)
	if err != nil {
		bootLog := logger.New("info").Sugar()
		bootLog.Errorw("refusing to start", "config", configPath, "error", err)
		_ = bootLog.Sync()
		return 1
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if configPath != "" {
		log.Infow("loaded config", "path", configPath)
	}

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "roomrelay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Errorw("failed to initialize tracing", "error", err)
		return 1
	}

	authService, err := services.NewAuthService(
		cfg.Auth.StaticToken,
		cfg.Auth.JWTSecret,
		cfg.Auth.TokenTTL,
		cfg.Auth.VerifyCacheTTL,
	)
	if err != nil {
		log.Errorw("refusing to start", "error", err)
		return 1
	}
	log.Infow("authentication configured",
		"static_token", authService.StaticEnabled(),
		"jwt", authService.JWTEnabled(),
	)

	// Stats persistence: memory by default, Redis when enabled
	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	statsRepo := repoFactory.CreateStatsRepository()
	if repoFactory.UsingRedis() {
		loadCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if totals, err := statsRepo.Load(loadCtx); err == nil {
			log.Infow("persisted stats", "totals", totals)
		}
		cancel()
	}
	batcher := batch.NewBatcher(
		cfg.Monitoring.StatsBatchSize,
		cfg.Monitoring.StatsFlushInterval,
		statsRepo,
		func(err error) { log.Warnw("failed to flush stats", "error", err) },
	)

	prometheusCollector := monitoring.NewPrometheusCollector()
	metricsService := services.NewMetricsService(prometheusCollector, batcher)

	// Core services
	roomService := services.NewRoomService(cfg.Rooms.Capacity, metricsService, log)
	sessionService := services.NewSessionService(cfg.RateLimiting.WebSocket.MaxConcurrent)
	dispatcher := services.NewDispatcherService(
		roomService,
		metricsService,
		cfg.RateLimiting.WebSocket.MessagesPerWindow,
		cfg.Rooms.MaxChatLength,
		log,
	)
	liveness := services.NewLivenessService(sessionService, roomService, metricsService, cfg.Signal.PingInterval, log)
	cleanup := services.NewCleanupService(roomService, cfg.Rooms.TTL, cfg.Rooms.CleanupInterval, log)

	wsServer := wsignal.NewWebSocketServer(
		authService,
		sessionService,
		roomService,
		dispatcher,
		metricsService,
		wsignal.Options{
			MaxPayloadBytes: cfg.Signal.MaxPayloadBytes,
			SendBufferSize:  cfg.Signal.SendBufferSize,
			WriteTimeout:    cfg.Signal.WriteTimeout,
			AllowedOrigins:  cfg.Auth.AllowedOrigins,
		},
		log,
	)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddStatsRepositoryCheck(statsRepo, 2*time.Second)
	healthChecker.AddDrainCheck(sessionService.Draining)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	if cfg.Logging.Level == "debug" {
		router.Use(middleware.RequestLogger(log))
	}

	router.GET(cfg.Signal.Path,
		middleware.NewConnectionRateLimitMiddleware(cfg),
		gin.WrapF(wsServer.HandleWebSocket),
	)
	httphandlers.NewHealthHandler(metricsService, sessionService, roomService, healthChecker).SetupRoutes(router)
	httphandlers.NewAuthHandler(authService, authService, cfg.Auth.TokenTTL).SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(prometheusCollector.Registry(), promhttp.HandlerOpts{})))
		log.Info("Prometheus metrics enabled")
	}
	router.NoRoute(middleware.NotFoundHandler())

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Periodic tasks
	tasksCtx, stopTasks := context.WithCancel(context.Background())
	defer stopTasks()
	go liveness.Run(tasksCtx)
	go cleanup.Run(tasksCtx)
	go metricsService.RunGauges(tasksCtx, time.Second, sessionService, roomService)

	shutdown := services.NewShutdownService(sessionService, roomService, cfg.Signal.ShutdownTimeout, log)
	shutdown.OnStopAccepting("http server", srv.Shutdown)
	shutdown.OnStopped("periodic tasks", func(context.Context) error {
		stopTasks()
		return nil
	})
	shutdown.OnStopped("stats batcher", func(context.Context) error {
		batcher.Stop()
		return nil
	})
	shutdown.OnStopped("auth cache", func(context.Context) error {
		authService.Stop()
		return nil
	})
	shutdown.OnStopped("repositories", func(context.Context) error {
		return repoFactory.Close()
	})
	shutdown.OnStopped("tracer", tracer.Shutdown)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting roomrelay", "address", cfg.Server.Address, "path", cfg.Signal.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	exitCode := 0
	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
		exitCode = 1
	case <-sigCtx.Done():
		log.Info("received shutdown signal")
	}
	stopSignals()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdown.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during shutdown", "error", err)
	}

	log.Info("roomrelay stopped")
	return exitCode
}
