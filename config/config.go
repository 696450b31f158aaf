// Package config loads the service configuration from the environment.
// There is no process-global accessor: cmd constructs a Config once and
// passes it down, so tests can build their own without touching env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// TargetConfig describes one balanced storage target.
type TargetConfig struct {
	Name   string
	URL    string
	Tier   string
	Weight int
}

// QueueSettings bounds the asynchronous jackpot pipeline.
type QueueSettings struct {
	MaxSize      int
	Concurrency  int
	BatchSize    int
	PumpInterval time.Duration
}

// RateLimitConfig is the admission budget for one operation class.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstLimit        int
}

// PoolSettings configures one jackpot tier. A zero MaxAmount means
// uncapped.
type PoolSettings struct {
	SeedAmount          int64
	MaxAmount           int64
	ContributionRateBps int64
}

// Config holds all application configuration
type Config struct {
	Environment string
	HTTPPort    int

	// Database configuration
	DatabaseURL      string
	Targets          []TargetConfig
	BalancerStrategy string

	// Pipeline configuration
	Queue             QueueSettings
	ContributionLimit RateLimitConfig
	WinLimit          RateLimitConfig
	Pools             map[string]PoolSettings

	// Cache configuration
	CacheHotTTL  time.Duration
	CacheWarmTTL time.Duration
	RedisAddr    string

	// Messaging configuration
	NATSServers   []string
	KafkaBrokers  []string
	KafkaDLQTopic string

	// Fraud screening; an empty URL disables it
	FraudURL     string
	FraudTimeout time.Duration
}

var validTiers = map[string]bool{"low": true, "medium": true, "high": true, "extreme": true}

var validStrategies = map[string]bool{
	"round_robin":       true,
	"least_connections": true,
	"weighted_random":   true,
}

// Load reads configuration from environment variables, honoring a .env
// file when present. Defaults cover everything except DATABASE_URL;
// malformed values fail here rather than at first use.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded configuration from .env file")
	}

	cfg := &Config{
		Environment:      envString("ENVIRONMENT", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		BalancerStrategy: envString("BALANCER_STRATEGY", "least_connections"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		NATSServers:   envStringList("NATS_URLS"),
		KafkaBrokers:  envStringList("KAFKA_BROKERS"),
		KafkaDLQTopic: envString("KAFKA_DLQ_TOPIC", "jackpotd.dead-letters"),
		FraudURL:      os.Getenv("FRAUD_URL"),
	}

	var err error
	if cfg.HTTPPort, err = envInt("HTTP_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Queue.MaxSize, err = envInt("QUEUE_MAX_SIZE", 10000); err != nil {
		return nil, err
	}
	if cfg.Queue.Concurrency, err = envInt("QUEUE_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.Queue.BatchSize, err = envInt("QUEUE_BATCH_SIZE", 64); err != nil {
		return nil, err
	}
	if cfg.Queue.PumpInterval, err = envDuration("QUEUE_PUMP_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ContributionLimit.RequestsPerMinute, err = envInt("CONTRIBUTION_RATE_LIMIT", 600); err != nil {
		return nil, err
	}
	if cfg.ContributionLimit.BurstLimit, err = envInt("CONTRIBUTION_BURST_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.WinLimit.RequestsPerMinute, err = envInt("WIN_RATE_LIMIT", 120); err != nil {
		return nil, err
	}
	if cfg.WinLimit.BurstLimit, err = envInt("WIN_BURST_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.CacheHotTTL, err = envDuration("CACHE_HOT_TTL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheWarmTTL, err = envDuration("CACHE_WARM_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FraudTimeout, err = envDuration("FRAUD_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}

	if cfg.Pools, err = loadPools(); err != nil {
		return nil, err
	}
	if cfg.Targets, err = loadTargets(cfg.DatabaseURL); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPools reads per-tier overrides on top of the seeded defaults.
// The default rates sum to 100 bps: one percent of every wager feeds
// the jackpot meters.
func loadPools() (map[string]PoolSettings, error) {
	pools := map[string]PoolSettings{
		"minor": {SeedAmount: 100000, MaxAmount: 10000000, ContributionRateBps: 50},
		"major": {SeedAmount: 1000000, MaxAmount: 100000000, ContributionRateBps: 30},
		"mega":  {SeedAmount: 10000000, MaxAmount: 0, ContributionRateBps: 20},
	}

	for group := range pools {
		prefix := "JACKPOT_" + strings.ToUpper(group)
		settings := pools[group]

		var err error
		if settings.SeedAmount, err = envInt64(prefix+"_SEED", settings.SeedAmount); err != nil {
			return nil, err
		}
		if settings.MaxAmount, err = envInt64(prefix+"_MAX", settings.MaxAmount); err != nil {
			return nil, err
		}
		if settings.ContributionRateBps, err = envInt64(prefix+"_RATE_BPS", settings.ContributionRateBps); err != nil {
			return nil, err
		}
		pools[group] = settings
	}
	return pools, nil
}

// loadTargets parses DATABASE_TARGETS entries of the form
// name|url|tier|weight separated by semicolons. When unset, the
// primary DATABASE_URL becomes the single high-tier target.
func loadTargets(primaryURL string) ([]TargetConfig, error) {
	raw := os.Getenv("DATABASE_TARGETS")
	if raw == "" {
		return []TargetConfig{{Name: "primary", URL: primaryURL, Tier: "high", Weight: 1}}, nil
	}

	var targets []TargetConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 4 {
			return nil, fmt.Errorf("DATABASE_TARGETS entry %q: want name|url|tier|weight", entry)
		}
		weight, err := strconv.Atoi(strings.TrimSpace(parts[3]))
		if err != nil {
			return nil, fmt.Errorf("DATABASE_TARGETS entry %q: bad weight: %w", entry, err)
		}
		targets = append(targets, TargetConfig{
			Name:   strings.TrimSpace(parts[0]),
			URL:    strings.TrimSpace(parts[1]),
			Tier:   strings.TrimSpace(parts[2]),
			Weight: weight,
		})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("DATABASE_TARGETS is set but contains no entries")
	}
	return targets, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort)
	}
	if !validStrategies[c.BalancerStrategy] {
		return fmt.Errorf("BALANCER_STRATEGY %q is not round_robin, least_connections, or weighted_random", c.BalancerStrategy)
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be positive")
	}
	if c.Queue.Concurrency <= 0 || c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue concurrency and batch size must be positive")
	}
	if c.Queue.PumpInterval <= 0 {
		return fmt.Errorf("QUEUE_PUMP_INTERVAL must be positive")
	}
	for _, limit := range []RateLimitConfig{c.ContributionLimit, c.WinLimit} {
		if limit.RequestsPerMinute <= 0 || limit.BurstLimit <= 0 {
			return fmt.Errorf("rate limits must be positive")
		}
	}
	for group, pool := range c.Pools {
		if pool.SeedAmount < 0 || pool.ContributionRateBps < 0 {
			return fmt.Errorf("pool %s: seed and rate must be non-negative", group)
		}
		if pool.MaxAmount > 0 && pool.MaxAmount < pool.SeedAmount {
			return fmt.Errorf("pool %s: max %d below seed %d", group, pool.MaxAmount, pool.SeedAmount)
		}
	}
	for _, target := range c.Targets {
		if target.Name == "" || target.URL == "" {
			return fmt.Errorf("storage target needs a name and url")
		}
		if !validTiers[target.Tier] {
			return fmt.Errorf("storage target %s: tier %q is not low, medium, high, or extreme", target.Name, target.Tier)
		}
		if target.Weight <= 0 {
			return fmt.Errorf("storage target %s: weight must be positive", target.Name)
		}
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envStringList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
