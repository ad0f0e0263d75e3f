package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ojengine/internal/common/db"
	commonmw "ojengine/internal/common/http/middleware"
	"ojengine/internal/common/mq"
	"ojengine/internal/common/storage"
	"ojengine/internal/judge/controller"
	"ojengine/internal/judge/metrics"
	"ojengine/internal/judge/repository"
	"ojengine/internal/judge/sandbox/engine"
	"ojengine/internal/judge/sandbox/profile"
	"ojengine/internal/judge/sandbox/runner"
	"ojengine/internal/judge/service"
	"ojengine/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "configs/judge_worker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before the config is expanded")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge worker exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := db.Open(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	queue, err := mq.New(appCfg.Queue.Config)
	if err != nil {
		return fmt.Errorf("init queue failed: %w", err)
	}
	defer func() {
		_ = queue.Close()
	}()

	eng, err := engine.New(appCfg.Sandbox.Engine)
	if err != nil {
		return fmt.Errorf("init sandbox engine failed: %w", err)
	}
	defer func() {
		_ = eng.Close()
	}()
	if err := eng.Ping(ctx); err != nil {
		logger.Warn(ctx, "sandbox engine not reachable yet", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)
	recorder.RegisterPool(database.Stats)

	jobRunner, err := runner.NewRunner(eng, appCfg.Sandbox.Runner, recorder)
	if err != nil {
		return fmt.Errorf("init runner failed: %w", err)
	}

	languages := profile.NewLocalRepository(appCfg.Languages)
	logger.Info(ctx, "language profiles loaded", zap.Strings("languages", languages.IDs()))

	store := repository.NewSQLStore(database)
	svcCfg := service.Config{
		Store:     store,
		Runner:    jobRunner,
		Languages: languages,
		Settings: service.Settings{
			DefaultLimits:      appCfg.Judge.defaultLimits(),
			ArchiveDiagnostics: appCfg.Artifacts.Enabled,
			SideChannelTimeout: appCfg.Judge.SideChannelTimeout,
			Analysis:           appCfg.Judge.analysisSettings(),
		},
		Metrics: recorder,
	}
	if appCfg.Artifacts.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.Artifacts.MinIO)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Artifacts.Bucket); err != nil {
			return fmt.Errorf("ensure artifact bucket failed: %w", err)
		}
		svcCfg.Archive = repository.NewArtifactStore(objStorage, appCfg.Artifacts.Bucket, appCfg.Artifacts.Prefix)
	}
	if appCfg.Events.Topic != "" {
		svcCfg.Publisher = repository.NewMQVerdictEventPublisher(queue, appCfg.Events.Topic)
	}

	judgeSvc, err := service.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}
	worker, err := service.NewWorker(service.WorkerConfig{
		Judge:         judgeSvc,
		Consumer:      queue,
		Topic:         appCfg.Queue.Topic,
		ConsumerGroup: appCfg.Queue.ConsumerGroup,
		Metrics:       recorder,
	})
	if err != nil {
		return fmt.Errorf("init worker failed: %w", err)
	}

	judgeController := controller.NewJudgeController(store, map[string]controller.Pinger{
		"database": store,
		"queue":    queue,
		"sandbox":  eng,
	})
	httpServer := buildHTTPServer(appCfg.Server, judgeController, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(shutdownCtx)

	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutdown signal received")
		sctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}

func buildHTTPServer(cfg ServerConfig, judgeController *controller.JudgeController, metricsHandler http.Handler) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())
	controller.RegisterRoutes(router, judgeController, metricsHandler)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
