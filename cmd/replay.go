package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"jackpotd/application"
	"jackpotd/cache"
	"jackpotd/config"
	"jackpotd/domain/events"
	"jackpotd/infrastructure"
	"jackpotd/pipeline"
)

// replayIdleTimeout decides when a kafka topic counts as drained: no
// record for this long means the backlog is done.
const replayIdleTimeout = 5 * time.Second

// RunReplay folds a historical contribution topic into the pools and
// exits. It reuses the balanced storage targets but skips the queue,
// HTTP, and messaging surfaces.
func RunReplay(ctx context.Context, topic string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required for replay")
	}

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

	jackpotService, err := application.NewJackpotService(jackpotConfig(cfg),
		executor,
		cache.NewPoolCache(nil, cfg.CacheHotTTL, cfg.CacheWarmTTL),
		nil,
		events.NewBus(),
	)
	if err != nil {
		return err
	}

	source := infrastructure.NewKafkaReplaySource(
		cfg.KafkaBrokers, topic, "jackpotd-replay", replayIdleTimeout)
	defer source.Close()

	log.WithField("topic", topic).Info("Starting contribution replay")
	start := time.Now()

	result, err := jackpotService.ReplayContributions(ctx, source, pipeline.StreamConfig{})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"events":   result.Events,
		"skipped":  source.Skipped(),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Replay finished")
	for group, totals := range result.Totals {
		log.WithFields(log.Fields{
			"group":         group,
			"contributions": totals.Contributions,
			"count":         totals.ContributionCount,
		}).Info("Replay group total")
	}
	return nil
}
