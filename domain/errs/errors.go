// Package errs defines the typed errors shared across the settlement
// pipeline. Callers branch on them with errors.As; everything not in
// this taxonomy is treated as an unexpected internal failure.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a malformed or out-of-policy request. It is
// never retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a validation error for a specific field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing entity by kind and identifier
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.ID)
}

// NewNotFoundError creates a not-found error for an entity
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientBalanceError reports that the user's combined buckets
// cannot cover the requested amount. Available is the total the user
// actually had, so callers can show it without another read.
type InsufficientBalanceError struct {
	UserID    int64
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %d: requested %d, available %d",
		e.UserID, e.Requested, e.Available)
}

// SecurityRejection reports that a fraud or risk check refused the
// request. The reason is safe to log but not shown to the player.
type SecurityRejection struct {
	UserID int64
	Reason string
}

func (e *SecurityRejection) Error() string {
	return fmt.Sprintf("security rejection for user %d: %s", e.UserID, e.Reason)
}

// StorageError wraps a database failure that exhausted its retries.
// Attempts counts how many tries were made before giving up.
type StorageError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// QueueFullError reports backpressure: the queue rejected a new item
// because it was at capacity.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue is full: capacity %d reached", e.Capacity)
}

// NoHealthyTargetsError reports that every candidate in the balancer's
// target set was unhealthy at selection time.
type NoHealthyTargetsError struct {
	Total int
}

func (e *NoHealthyTargetsError) Error() string {
	return fmt.Sprintf("no healthy targets available out of %d", e.Total)
}

// RateLimitedError reports that an operation class exceeded its
// admission budget. RetryAfter tells callers when a token will next be
// available.
type RateLimitedError struct {
	Operation  string
	RetryAfter time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s requests", e.Operation)
}

// DuplicateSettlementError reports a replayed idempotency key. The
// original settlement ID lets callers return the stored result.
type DuplicateSettlementError struct {
	IdempotencyKey string
	SettlementID   int64
}

func (e *DuplicateSettlementError) Error() string {
	return fmt.Sprintf("settlement already processed for key %s (id %d)", e.IdempotencyKey, e.SettlementID)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInsufficientBalance reports whether err is an insufficient-balance error
func IsInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}

// IsSecurityRejection reports whether err is a security rejection
func IsSecurityRejection(err error) bool {
	var target *SecurityRejection
	return errors.As(err, &target)
}

// IsStorage reports whether err is a storage error
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsQueueFull reports whether err is a queue-full error
func IsQueueFull(err error) bool {
	var target *QueueFullError
	return errors.As(err, &target)
}

// IsNoHealthyTargets reports whether err is a no-healthy-targets error
func IsNoHealthyTargets(err error) bool {
	var target *NoHealthyTargetsError
	return errors.As(err, &target)
}

// IsRateLimited reports whether err is a rate-limit error
func IsRateLimited(err error) bool {
	var target *RateLimitedError
	return errors.As(err, &target)
}

// IsDuplicateSettlement reports whether err is a duplicate-settlement error
func IsDuplicateSettlement(err error) bool {
	var target *DuplicateSettlementError
	return errors.As(err, &target)
}

// IsTerminal reports whether err should never be retried regardless of
// transport-level classification.
func IsTerminal(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsInsufficientBalance(err) ||
		IsSecurityRejection(err) || IsDuplicateSettlement(err)
}
