package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"jackpotd/api"
	"jackpotd/application"
	"jackpotd/cache"
	"jackpotd/config"
	"jackpotd/database"
	"jackpotd/domain/entities"
	"jackpotd/domain/events"
	"jackpotd/domain/interfaces"
	"jackpotd/domain/services"
	"jackpotd/infrastructure"
	"jackpotd/infrastructure/observability"
	"jackpotd/pipeline"
	"jackpotd/repository"
)

// Run initializes and starts the service. It blocks until ctx is
// cancelled, then shuts everything down in reverse order.
func Run(ctx context.Context) error {
	log.Info("Starting jackpotd...")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established")

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Balanced storage targets for the asynchronous pipeline. Each
	// target gets its own pool sized by workload tier.
	executor := pipeline.NewExecutorGroup(
		pipeline.BalancerStrategy(cfg.BalancerStrategy),
		pipeline.NewRetryEngine(),
	)
	targetDBs, err := connectTargets(ctx, cfg, executor)
	if err != nil {
		return err
	}
	defer func() {
		for _, tdb := range targetDBs {
			tdb.Close()
		}
	}()
	executor.Start(ctx)

	// Warm cache tier is optional; without redis the pool cache runs
	// on its in-process hot tier alone.
	var warm interfaces.Cache
	if cfg.RedisAddr != "" {
		var redisClient *redis.Client
		redisClient, err = infrastructure.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		warm = infrastructure.NewRedisCache(redisClient)
		log.WithField("addr", cfg.RedisAddr).Info("Redis warm cache enabled")
	}
	poolCache := cache.NewPoolCache(warm, cfg.CacheHotTTL, cfg.CacheWarmTTL)

	// Terminally failed queue items go to kafka when brokers are
	// configured; otherwise they are only logged.
	var dlq interfaces.DeadLetterSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := infrastructure.NewKafkaDeadLetterSink(cfg.KafkaBrokers, cfg.KafkaDLQTopic)
		defer kafkaSink.Close()
		dlq = kafkaSink
		log.WithField("topic", cfg.KafkaDLQTopic).Info("Kafka dead letter sink enabled")
	}

	jackpotService, err := application.NewJackpotService(jackpotConfig(cfg), executor, poolCache, dlq, eventBus)
	if err != nil {
		return err
	}

	fraud := infrastructure.NewFraudClient(cfg.FraudURL, cfg.FraudTimeout)
	betService := services.NewBetService(
		repository.NewUserRepository(db),
		repository.NewBalanceRepository(db),
		repository.NewGameRepository(db),
		repository.NewSessionRepository(db),
		uowFactory,
		fraud,
	)
	bonusService := services.NewBonusService(uowFactory)
	log.Info("Services initialized")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	metrics.ObserveBus(eventBus)
	defer metrics.StopObserving()
	metrics.BindQueue(jackpotService.QueueMetrics)
	metrics.BindTargets(executor.Targets)

	hub := infrastructure.NewPoolMeterHub(nil)
	hub.Start(eventBus)
	defer hub.Stop()

	// NATS fan-out is optional
	var (
		bridge     *infrastructure.NATSEventBridge
		natsClient *infrastructure.NATSClient
	)
	if len(cfg.NATSServers) > 0 {
		natsClient = infrastructure.NewNATSClient(strings.Join(cfg.NATSServers, ","))
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		bridge = infrastructure.NewNATSEventBridge(natsClient, infrastructure.NewEventSubjectMapper())
		bridge.Start(eventBus)
		log.Info("NATS event bridge started")
	}

	stopPump := jackpotService.Start(ctx)

	srv := api.NewServer(cfg.HTTPPort, api.Deps{
		Bets:     betService,
		Bonuses:  bonusService,
		Jackpots: jackpotService,
		Metrics:  metrics,
		Hub:      hub,
		Registry: registry,
	})
	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":        cfg.HTTPPort,
			"environment": cfg.Environment,
		}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	stopPump()

	if bridge != nil {
		bridge.Stop()
	}
	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Failed to close NATS connection")
		}
	}

	log.Info("Shutdown completed")
	return nil
}

// connectTargets opens one tier-sized pool per configured storage
// target and registers it with the executor. On any failure the pools
// opened so far are closed before returning.
func connectTargets(ctx context.Context, cfg *config.Config, executor *pipeline.ExecutorGroup) ([]*database.DB, error) {
	targetDBs := make([]*database.DB, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		tier := pipeline.WorkloadTier(target.Tier)
		settings := pipeline.SettingsForTier(tier)
		tdb, err := database.NewConnectionWithOptions(ctx, target.URL, database.PoolOptions{
			MinConns:          settings.MinConns,
			MaxConns:          settings.MaxConns,
			HealthCheckPeriod: settings.HealthCheckInterval,
		})
		if err != nil {
			for _, opened := range targetDBs {
				opened.Close()
			}
			return nil, fmt.Errorf("failed to connect storage target %s: %w", target.Name, err)
		}
		targetDBs = append(targetDBs, tdb)
		executor.AddTarget(target.Name, tdb, tier, target.Weight)
		log.WithFields(log.Fields{
			"target": target.Name,
			"tier":   target.Tier,
			"weight": target.Weight,
		}).Info("Registered storage target")
	}
	return targetDBs, nil
}

func jackpotConfig(cfg *config.Config) application.JackpotServiceConfig {
	return application.JackpotServiceConfig{
		QueueMaxSize: cfg.Queue.MaxSize,
		Concurrency:  cfg.Queue.Concurrency,
		BatchSize:    cfg.Queue.BatchSize,
		PumpInterval: cfg.Queue.PumpInterval,
		ContributionLimit: pipeline.RateLimiterConfig{
			RequestsPerMinute: cfg.ContributionLimit.RequestsPerMinute,
			BurstLimit:        cfg.ContributionLimit.BurstLimit,
		},
		WinLimit: pipeline.RateLimiterConfig{
			RequestsPerMinute: cfg.WinLimit.RequestsPerMinute,
			BurstLimit:        cfg.WinLimit.BurstLimit,
		},
		Pools: poolConfigs(cfg.Pools),
	}
}

func poolConfigs(pools map[string]config.PoolSettings) map[entities.PoolGroup]entities.PoolConfig {
	out := make(map[entities.PoolGroup]entities.PoolConfig, len(pools))
	for name, settings := range pools {
		group := entities.PoolGroup(name)
		out[group] = entities.PoolConfig{
			Group:               group,
			SeedAmount:          settings.SeedAmount,
			MaxAmount:           settings.MaxAmount,
			ContributionRateBps: settings.ContributionRateBps,
		}
	}
	return out
}
