package interfaces

import (
	"context"
	"time"

	"jackpotd/domain/entities"
)

// FraudChecker defines the interface for pre-settlement risk screening.
// A rejection is returned as *errs.SecurityRejection; transport errors
// bubble up unchanged so the caller can decide whether to fail open.
type FraudChecker interface {
	// CheckBet screens a wager before any balance mutation
	CheckBet(ctx context.Context, req *entities.BetRequest) error
}

// Cache defines the interface for the warm cache tier
type Cache interface {
	// Get retrieves a value into dest, reporting whether the key was present
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores a value under key with a TTL
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error
}

// DeadLetterSink defines the interface for routing terminally failed
// work items out of the pipeline
type DeadLetterSink interface {
	// Publish writes a failed item record to the dead-letter stream
	Publish(ctx context.Context, key string, payload []byte) error
}
