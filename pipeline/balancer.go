package pipeline

import (
	"math/rand"
	"sync"

	"jackpotd/domain/errs"
)

// BalancerStrategy selects how the balancer picks among healthy targets
type BalancerStrategy string

const (
	StrategyRoundRobin       BalancerStrategy = "round_robin"
	StrategyLeastConnections BalancerStrategy = "least_connections"
	StrategyWeightedRandom   BalancerStrategy = "weighted_random"
)

// ParseBalancerStrategy converts a string into a strategy, reporting
// whether it named a known one.
func ParseBalancerStrategy(s string) (BalancerStrategy, bool) {
	switch BalancerStrategy(s) {
	case StrategyRoundRobin, StrategyLeastConnections, StrategyWeightedRandom:
		return BalancerStrategy(s), true
	default:
		return "", false
	}
}

type target struct {
	name               string
	weight             int
	currentConnections int
	healthy            bool
}

// TargetSnapshot is a point-in-time view of one balancer target
type TargetSnapshot struct {
	Name               string `json:"name"`
	Weight             int    `json:"weight"`
	CurrentConnections int    `json:"current_connections"`
	Healthy            bool   `json:"healthy"`
}

// LoadBalancer distributes work across named targets. An unhealthy
// target stays registered so it can come back on its own; it is only
// skipped during selection.
type LoadBalancer struct {
	mu        sync.Mutex
	strategy  BalancerStrategy
	targets   []*target
	rrIndex   int
	randFloat func() float64
}

// NewLoadBalancer creates a balancer with no targets
func NewLoadBalancer(strategy BalancerStrategy) *LoadBalancer {
	return &LoadBalancer{
		strategy:  strategy,
		randFloat: rand.Float64,
	}
}

// AddTarget registers a named target, healthy by default. Weight only
// matters under weighted-random; zero counts as one.
func (b *LoadBalancer) AddTarget(name string, weight int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.targets = append(b.targets, &target{
		name:    name,
		weight:  weight,
		healthy: true,
	})
}

// Acquire selects a healthy target and counts a connection against it.
// Fails with NoHealthyTargetsError when every target is unhealthy.
func (b *LoadBalancer) Acquire() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	healthy := make([]*target, 0, len(b.targets))
	for _, t := range b.targets {
		if t.healthy {
			healthy = append(healthy, t)
		}
	}
	if len(healthy) == 0 {
		return "", &errs.NoHealthyTargetsError{Total: len(b.targets)}
	}

	var chosen *target
	switch b.strategy {
	case StrategyLeastConnections:
		chosen = healthy[0]
		for _, t := range healthy[1:] {
			if t.currentConnections < chosen.currentConnections {
				chosen = t
			}
		}

	case StrategyWeightedRandom:
		total := 0
		for _, t := range healthy {
			total += weightOf(t)
		}
		draw := int(b.randFloat() * float64(total))
		cumulative := 0
		chosen = healthy[len(healthy)-1]
		for _, t := range healthy {
			cumulative += weightOf(t)
			if draw < cumulative {
				chosen = t
				break
			}
		}

	default: // round robin
		chosen = healthy[b.rrIndex%len(healthy)]
		b.rrIndex++
	}

	chosen.currentConnections++
	return chosen.name, nil
}

// Release returns a connection previously counted by Acquire
func (b *LoadBalancer) Release(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.targets {
		if t.name == name && t.currentConnections > 0 {
			t.currentConnections--
			return
		}
	}
}

// SetHealth flips a target's health flag
func (b *LoadBalancer) SetHealth(name string, healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.targets {
		if t.name == name {
			t.healthy = healthy
			return
		}
	}
}

// Snapshot returns the current state of every target
func (b *LoadBalancer) Snapshot() []TargetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]TargetSnapshot, 0, len(b.targets))
	for _, t := range b.targets {
		out = append(out, TargetSnapshot{
			Name:               t.name,
			Weight:             t.weight,
			CurrentConnections: t.currentConnections,
			Healthy:            t.healthy,
		})
	}
	return out
}

func weightOf(t *target) int {
	if t.weight <= 0 {
		return 1
	}
	return t.weight
}
