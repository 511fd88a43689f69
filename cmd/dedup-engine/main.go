package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/api"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/cache"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/config"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/engine"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/index"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/metrics"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/service"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/utils"
)

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
	logger.Info("starting dedup-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configHandle, err := engine.NewConfigHandle(models.DedupConfig{
		Strategy:            models.Strategy(cfg.Dedup.Strategy),
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		TimeWindow:          cfg.Dedup.TimeWindow,
		Enabled:             cfg.Dedup.Enabled,
		ImportantTagKeys:    cfg.Dedup.ImportantTagKeys,
	})
	if err != nil {
		logger.Error("invalid dedup configuration", slog.Any("error", err))
		os.Exit(1)
	}

	scorer, err := engine.NewScorer(engine.SimilarityWeights{
		Title:       cfg.Similarity.TitleWeight,
		Description: cfg.Similarity.DescriptionWeight,
		Host:        cfg.Similarity.HostWeight,
		Service:     cfg.Similarity.ServiceWeight,
		Tags:        cfg.Similarity.TagsWeight,
	})
	if err != nil {
		logger.Error("invalid similarity weights", slog.Any("error", err))
		os.Exit(1)
	}

	recencyIndex, cleanup := buildIndex(ctx, cfg, configHandle, logger)
	defer cleanup()

	dedupEngine := engine.New(logger, configHandle, scorer, recencyIndex)
	dedupService := service.NewDedupService(logger, dedupEngine)

	server, err := api.NewServer(cfg.Server, dedupService, logger)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
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
		if serveErr := server.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("dedup-engine stopped")
}

// buildIndex selects the recency index backend: a shared Valkey store when
// the cache is configured, otherwise the in-process index with a background
// sweep. The returned cleanup stops the sweeper or closes the provider.
func buildIndex(ctx context.Context, cfg *config.Config, handle *engine.ConfigHandle, logger *slog.Logger) (index.RecencyIndex, func()) {
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, falling back to in-memory index", slog.Any("error", err))
		} else {
			return index.NewValkeyIndex(provider), func() { _ = provider.Close() }
		}
	}

	memIndex := index.NewMemoryIndex(cfg.Dedup.MaxIndexEntries)
	sweepInterval := cfg.Dedup.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case now := <-ticker.C:
				if removed := memIndex.Sweep(now.UTC(), handle.Load().TimeWindow); removed > 0 {
					logger.Debug("recency index sweep", slog.Int("removed", removed))
				}
			}
		}
	}()
	return memIndex, cancel
}
