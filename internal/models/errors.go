package models

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds as persisted in sync_errors.kind.
const (
	ErrKindAuth             = "auth"
	ErrKindRateLimitTimeout = "rate_limit_timeout"
	ErrKindExternalAPI      = "external_api"
	ErrKindSchema           = "schema"
	ErrKindMapping          = "mapping"
	ErrKindMatrixSize       = "matrix_size_exceeded"
	ErrKindCheckpointWrite  = "checkpoint_write"
	ErrKindSync             = "sync"
)

// AuthError means credentials were rejected. It is fatal for the whole run:
// nothing downstream can succeed without a valid token.
type AuthError struct {
	API    string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected (status %d)", e.API, e.Status)
}

// RateLimitTimeoutError means a caller waited longer than the configured
// ceiling for a rate limiter permit.
type RateLimitTimeoutError struct {
	API     string
	Waited  time.Duration
	MaxWait time.Duration
}

func (e *RateLimitTimeoutError) Error() string {
	return fmt.Sprintf("%s: rate limit permit not acquired within %s (waited %s)", e.API, e.MaxWait, e.Waited)
}

// ExternalAPIError is returned after the retry budget for a call is
// exhausted. Attributed to the product or variant being processed.
type ExternalAPIError struct {
	API      string
	Status   int
	Attempts int
	Err      error
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s: request failed after %d attempts (status %d): %v", e.API, e.Attempts, e.Status, e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }

// SchemaError means a response did not match the expected structure.
// Non-retryable, recorded per item.
type SchemaError struct {
	API    string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.API, e.Detail)
}

// MappingError means a mapping document is invalid or a required destination
// field could not be produced for a product.
type MappingError struct {
	Field  string
	Detail string
}

func (e *MappingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("mapping: %s", e.Detail)
	}
	return fmt.Sprintf("mapping: field %q: %s", e.Field, e.Detail)
}

// MatrixSizeExceededError protects memory on pathological variant inputs.
type MatrixSizeExceededError struct {
	ProductID string
	Cells     int
	Limit     int
}

func (e *MatrixSizeExceededError) Error() string {
	return fmt.Sprintf("variant matrix for product %s has %d cells, limit is %d", e.ProductID, e.Cells, e.Limit)
}

// AlreadyRunningError rejects a trigger while a run is active for the target.
type AlreadyRunningError struct {
	Target string
	RunID  string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("sync already running for target %s (run %s)", e.Target, e.RunID)
}

// CheckpointWriteError is fatal: if progress cannot be made durable the run
// stops rather than silently lose track of state.
type CheckpointWriteError struct {
	RunID string
	Err   error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("checkpoint write failed for run %s: %v", e.RunID, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error { return e.Err }

// Fatal reports whether an error must abort the whole run instead of being
// recorded against the product being processed.
func Fatal(err error) bool {
	var authErr *AuthError
	var cpErr *CheckpointWriteError
	return errors.As(err, &authErr) || errors.As(err, &cpErr)
}

// ErrorKind classifies an error into the persisted taxonomy.
func ErrorKind(err error) string {
	var (
		authErr   *AuthError
		rlErr     *RateLimitTimeoutError
		apiErr    *ExternalAPIError
		schemaErr *SchemaError
		mapErr    *MappingError
		sizeErr   *MatrixSizeExceededError
		cpErr     *CheckpointWriteError
	)
	switch {
	case errors.As(err, &authErr):
		return ErrKindAuth
	case errors.As(err, &rlErr):
		return ErrKindRateLimitTimeout
	case errors.As(err, &apiErr):
		return ErrKindExternalAPI
	case errors.As(err, &schemaErr):
		return ErrKindSchema
	case errors.As(err, &mapErr):
		return ErrKindMapping
	case errors.As(err, &sizeErr):
		return ErrKindMatrixSize
	case errors.As(err, &cpErr):
		return ErrKindCheckpointWrite
	}
	return ErrKindSync
}

// ErrorRetries extracts the attempt count from a retried external call, 0 for
// everything else.
func ErrorRetries(err error) int {
	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Attempts
	}
	return 0
}
