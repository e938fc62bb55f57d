package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/equipment-monitor/internal/api"
	"github.com/miradorstack/equipment-monitor/internal/cache"
	"github.com/miradorstack/equipment-monitor/internal/config"
	"github.com/miradorstack/equipment-monitor/internal/engine"
	"github.com/miradorstack/equipment-monitor/internal/metrics"
	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/monitor"
	"github.com/miradorstack/equipment-monitor/internal/notify"
	"github.com/miradorstack/equipment-monitor/internal/repo"
	"github.com/miradorstack/equipment-monitor/internal/services"
	"github.com/miradorstack/equipment-monitor/internal/tracing"
	"github.com/miradorstack/equipment-monitor/internal/utils"
)

var version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)
	logger.Info("starting equipment-monitor",
		slog.String("version", version),
		slog.String("grpc_address", cfg.Server.GRPCAddress),
		slog.String("http_address", cfg.Server.HTTPAddress),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.NewProvider(ctx, tracing.Options{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
		tracerProvider = nil
	}

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			KeyPrefix:    cfg.Cache.KeyPrefix,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, using in-process cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	factoryClient := repo.NewFactoryClient(repo.FactoryClientConfig{
		BaseURL:             cfg.Clients.Factory.BaseURL,
		DetectedContentPath: cfg.Clients.Factory.DetectedContentPath,
		DeviceDataPath:      cfg.Clients.Factory.DeviceDataPath,
		Timeout:             cfg.Clients.Factory.Timeout,
		RosterTTL:           cfg.Cache.RosterTTL,
	}, cacheProvider, logger)

	vocab, err := engine.LoadVocabulary(cfg.Vocabulary.Path, logger)
	if err != nil {
		logger.Error("failed to load vocabulary", slog.String("path", cfg.Vocabulary.Path), slog.Any("error", err))
		os.Exit(1)
	}
	classifier := engine.NewSwappableClassifier(engine.NewKeywordClassifier(vocab))
	if cfg.Vocabulary.Watch {
		watcher := engine.NewVocabularyWatcher(cfg.Vocabulary.Path, classifier, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("vocabulary watcher stopped", slog.Any("error", err))
			}
		}()
	}

	analyzer := engine.NewAnalyzer(logger, classifier)
	coordinator := monitor.NewCoordinator(factoryClient, analyzer, logger, monitor.Options{
		PollInterval:  cfg.Monitor.PollInterval,
		DefaultDevice: cfg.Monitor.DefaultDevice,
		DefaultWindow: models.QueryWindow{
			StartDate: cfg.Monitor.DefaultWindow.StartDate,
			StartTime: cfg.Monitor.DefaultWindow.StartTime,
			EndDate:   cfg.Monitor.DefaultWindow.EndDate,
			EndTime:   cfg.Monitor.DefaultWindow.EndTime,
		},
		HotspotLimit: cfg.Monitor.HotspotLimit,
	})

	hub := api.NewHub(logger)
	go hub.Run(ctx)
	coordinator.AddListener(hub)

	var publisher *notify.AMQPPublisher
	if cfg.Notify.URL != "" {
		publisher, err = notify.Dial(cfg.Notify.URL, notify.Options{
			Exchange:    cfg.Notify.Exchange,
			RoutingKey:  cfg.Notify.RoutingKey,
			MinSeverity: models.Severity(strings.ToLower(cfg.Notify.MinSeverity)),
			DedupeTTL:   cfg.Cache.DedupeTTL,
		}, cacheProvider, logger)
		if err != nil {
			logger.Warn("anomaly notifications disabled", slog.Any("error", err))
		} else {
			coordinator.AddListener(publisher)
		}
	}

	monitorService := services.NewMonitorService(logger, coordinator, factoryClient)
	server, err := api.NewServer(cfg.Server, monitorService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var httpServer *api.HTTPServer
	if cfg.Server.HTTPAddress != "" {
		httpServer = api.NewHTTPServer(cfg.Server.HTTPAddress, api.NewRouter(coordinator, factoryClient, hub, logger))
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.Start(); err != nil {
				logger.Error("http server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go func() {
		if err := coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("monitor loop exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}
	server.Shutdown(shutdownCtx)
	coordinator.Wait()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("amqp publisher close", slog.Any("error", err))
		}
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}

	logger.Info("equipment-monitor stopped")
}
