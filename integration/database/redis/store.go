package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopguard/shopguard/core/idempotency"
)

// keyPrefix namespaces ledger entries in a shared Redis instance.
const keyPrefix = "idempotency:"

// record is the JSON wire form of an idempotency.Record.
type record struct {
	Key            string    `json:"key"`
	UserID         string    `json:"user_id,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Endpoint       string    `json:"endpoint"`
	RequestHash    string    `json:"request_hash"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseType   string    `json:"response_content_type,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// IdempotencyStore is the Redis-backed ledger of idempotency records.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a ledger over the given Redis client.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Find returns the record for key, or idempotency.ErrNotFound.
// Redis drops expired entries itself, so a hit is always a live record.
func (s *IdempotencyStore) Find(ctx context.Context, key string) (*idempotency.Record, error) {
	payload, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, idempotency.ErrNotFound
		}
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return fromWire(&rec), nil
}

// Create inserts a pending record with a TTL equal to its retention.
// SET NX enforces key uniqueness at creation.
func (s *IdempotencyStore) Create(ctx context.Context, rec *idempotency.Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("create idempotency record: record already expired")
	}

	payload, err := json.Marshal(toWire(rec))
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, keyPrefix+rec.Key, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("create idempotency record: %w", err)
	}
	if !ok {
		return idempotency.ErrDuplicateKey
	}
	return nil
}

// Resolve stores the response on a pending record, keeping the TTL.
// A watch-based transaction prevents clobbering a concurrent resolve.
func (s *IdempotencyStore) Resolve(ctx context.Context, key string, status int, contentType string, body []byte) error {
	fullKey := keyPrefix + key

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, fullKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Record already expired mid-flight; nothing to resolve.
				return nil
			}
			return err
		}

		var rec record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return err
		}
		if rec.ResponseStatus != 0 {
			// First recorded response wins.
			return nil
		}

		rec.ResponseStatus = status
		rec.ResponseType = contentType
		rec.ResponseBody = body

		updated, err := json.Marshal(&rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, fullKey)
	if err != nil {
		return fmt.Errorf("resolve idempotency record: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires ledger entries natively via TTL.
func (s *IdempotencyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func toWire(rec *idempotency.Record) *record {
	return &record{
		Key:            rec.Key,
		UserID:         rec.UserID,
		SessionID:      rec.SessionID,
		Endpoint:       rec.Endpoint,
		RequestHash:    rec.RequestHash,
		ResponseStatus: rec.ResponseStatus,
		ResponseType:   rec.ResponseContentType,
		ResponseBody:   rec.ResponseBody,
		CreatedAt:      rec.CreatedAt,
		ExpiresAt:      rec.ExpiresAt,
	}
}

func fromWire(rec *record) *idempotency.Record {
	return &idempotency.Record{
		Key:                 rec.Key,
		UserID:              rec.UserID,
		SessionID:           rec.SessionID,
		Endpoint:            rec.Endpoint,
		RequestHash:         rec.RequestHash,
		ResponseStatus:      rec.ResponseStatus,
		ResponseContentType: rec.ResponseType,
		ResponseBody:        rec.ResponseBody,
		CreatedAt:           rec.CreatedAt,
		ExpiresAt:           rec.ExpiresAt,
	}
}

var _ idempotency.Store = (*IdempotencyStore)(nil)
