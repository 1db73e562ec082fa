package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickwarner/adshell/internal/analytics"
	"github.com/patrickwarner/adshell/internal/api"
	"github.com/patrickwarner/adshell/internal/config"
	"github.com/patrickwarner/adshell/internal/db"
	"github.com/patrickwarner/adshell/internal/lifecycle"
	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/observability"
	"github.com/patrickwarner/adshell/internal/provider"
	"github.com/patrickwarner/adshell/internal/provider/adserver"
	"github.com/patrickwarner/adshell/internal/remoteconfig"
	"github.com/patrickwarner/adshell/internal/vip"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TracingEndpoint, cfg.AdEnvironment, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	// Remote config, VIP status and cooldowns fall back to process-local
	// state when Redis is disabled.
	defaults := remoteconfig.NewStatic(cfg.AnalyticsEnabled, "")
	var (
		remote    remoteconfig.RemoteConfig = defaults
		vipStatus vip.Status                = vip.NewStatic(false)
		cooldowns lifecycle.CooldownStore   = lifecycle.NewMemoryCooldownStore()
		ping      func(context.Context) error
	)
	if cfg.RedisEnabled {
		store, err := db.InitRedis(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer store.Close()
		remote = remoteconfig.NewRedis(store, defaults, logger)
		vipStatus = vip.NewRedis(store, cfg.UserID, logger)
		cooldowns = lifecycle.NewRedisCooldownStore(store, 24*time.Hour, logger)
		ping = store.Ping
	}

	var recorder analytics.Recorder
	if cfg.AnalyticsEnabled && cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			logger.Warn("analytics disabled: clickhouse unavailable", zap.Error(err))
		} else {
			defer func() { _ = ch.Close() }()
			recorder = ch
		}
	}
	events := analytics.NewLogger(recorder, func() bool {
		return cfg.AnalyticsEnabled && remote.IsAnalyticsEnabled()
	}, logger, metricsRegistry)

	// A nil provider selects mock ads.
	var adProvider provider.Provider
	if cfg.AdServerURL != "" {
		adProvider = adserver.New(adserver.Config{
			BaseURL:     cfg.AdServerURL,
			APIKey:      cfg.AdAPIKey,
			PublisherID: cfg.AdPublisherID,
			UserID:      cfg.UserID,
			Timeout:     cfg.AdRequestTimeout,
			DisplayTime: cfg.AdDisplayTime,
			Reward:      models.Reward{Amount: cfg.RewardAmount, Type: cfg.RewardType},
		}, logger)
	}

	manager := lifecycle.NewManager(lifecycle.Options{
		Provider:     adProvider,
		RemoteConfig: remote,
		VIP:          vipStatus,
		Analytics:    events,
		Units:        models.NewUnitTable(models.ParseEnvironment(cfg.AdEnvironment)),
		Metrics:      metricsRegistry,
		Logger:       logger,
		Cooldowns:    cooldowns,
		Policy: lifecycle.Policy{
			InterstitialCooldown:  cfg.InterstitialCooldown,
			AppOpenCooldown:       cfg.AppOpenCooldown,
			InterstitialRetry:     cfg.InterstitialRetry,
			RewardedRetry:         cfg.RewardedRetry,
			AppOpenRetry:          cfg.AppOpenRetry,
			RetryMaxAttempts:      cfg.RetryMaxAttempts,
			RetryExponential:      cfg.RetryExponential,
			RetryMaxInterval:      cfg.RetryMaxInterval,
			MockInterstitialDelay: cfg.MockInterstitial,
			MockRewardedDelay:     cfg.MockRewarded,
			MockReward:            models.Reward{Amount: cfg.RewardAmount, Type: cfg.RewardType},
		},
	})
	defer manager.Close()
	manager.Initialize()

	srvDeps := api.NewServer(logger, manager, metricsRegistry)
	srvDeps.Ping = ping

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      srvDeps.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad shell running",
		zap.String("addr", addr),
		zap.Bool("mock_mode", manager.MockMode()),
		zap.String("environment", cfg.AdEnvironment))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := events.Wait(shutdownCtx); err != nil {
		logger.Warn("analytics events still pending at shutdown", zap.Error(err))
	}

	return nil
}
