package idempotency

import (
	"context"
	"errors"
	"time"
)

// Store errors. Implementations must return these sentinels (possibly
// wrapped) so the Guard can distinguish expected outcomes from
// infrastructure failures.
var (
	// ErrNotFound is returned by Find when no record exists for the key.
	ErrNotFound = errors.New("idempotency record not found")
	// ErrDuplicateKey is returned by Create when a live record already
	// holds the key. The Guard re-reads and follows the existing-record path.
	ErrDuplicateKey = errors.New("idempotency key already exists")
)

// Guard rejection errors, mapped to the wire contract by the middleware.
var (
	ErrInvalidKey  = errors.New("idempotency key must be 16-256 characters")
	ErrKeyMismatch = errors.New("idempotency key belongs to another caller")
	ErrKeyConflict = errors.New("idempotency key was used for a different request")
	ErrInProgress  = errors.New("request with this idempotency key is in progress")
)

// Store is the durable ledger of idempotency records.
// Implementations must enforce key uniqueness at creation time and are
// free to overwrite records that have already expired, since those are
// treated identically to absent records.
type Store interface {
	// Find returns the record for key, or ErrNotFound.
	Find(ctx context.Context, key string) (*Record, error)
	// Create inserts a pending record. It must fail with ErrDuplicateKey
	// when a non-expired record already holds the key.
	Create(ctx context.Context, record *Record) error
	// Resolve stores the response on the record. Resolving an absent
	// record is a no-op: the sweep may have removed it mid-flight.
	Resolve(ctx context.Context, key string, status int, contentType string, body []byte) error
	// DeleteExpired purges records whose expiry has passed and reports
	// how many were removed. This is the only deletion path.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
