package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopguard/shopguard/core/idempotency"
)

// querier is the subset of pgx operations the store needs; both
// *pgxpool.Pool and pgx.Tx satisfy it.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdempotencyStore is the PostgreSQL-backed ledger of idempotency records.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore creates a ledger over the given connection pool.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// db returns the transaction from the context when present, so ledger
// writes can join the caller's transaction.
func (s *IdempotencyStore) db(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// Find returns the record for key, or idempotency.ErrNotFound.
func (s *IdempotencyStore) Find(ctx context.Context, key string) (*idempotency.Record, error) {
	const query = `
		SELECT key, user_id, session_id, endpoint, request_hash,
		       response_status, response_content_type, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE key = $1`

	var (
		rec    idempotency.Record
		status *int
	)
	err := s.db(ctx).QueryRow(ctx, query, key).Scan(
		&rec.Key, &rec.UserID, &rec.SessionID, &rec.Endpoint, &rec.RequestHash,
		&status, &rec.ResponseContentType, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, idempotency.ErrNotFound
		}
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}

	if status != nil {
		rec.ResponseStatus = *status
	}
	return &rec, nil
}

// Create inserts a pending record. Key uniqueness is enforced by the
// primary key; a conflicting row is overwritten only when it has already
// expired, otherwise idempotency.ErrDuplicateKey is returned.
func (s *IdempotencyStore) Create(ctx context.Context, record *idempotency.Record) error {
	const query = `
		INSERT INTO idempotency_keys (key, user_id, session_id, endpoint, request_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			session_id = EXCLUDED.session_id,
			endpoint = EXCLUDED.endpoint,
			request_hash = EXCLUDED.request_hash,
			response_status = NULL,
			response_content_type = '',
			response_body = NULL,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
		RETURNING key`

	var inserted string
	err := s.db(ctx).QueryRow(ctx, query,
		record.Key, record.UserID, record.SessionID, record.Endpoint,
		record.RequestHash, record.CreatedAt, record.ExpiresAt,
	).Scan(&inserted)
	if err != nil {
		// No row returned means the conflicting record is still live.
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.ErrDuplicateKey
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return idempotency.ErrDuplicateKey
		}
		return fmt.Errorf("create idempotency record: %w", err)
	}
	return nil
}

// Resolve stores the response on a pending record. The status guard keeps
// the first recorded response immutable.
func (s *IdempotencyStore) Resolve(ctx context.Context, key string, status int, contentType string, body []byte) error {
	const query = `
		UPDATE idempotency_keys
		SET response_status = $2, response_content_type = $3, response_body = $4
		WHERE key = $1 AND response_status IS NULL`

	if _, err := s.db(ctx).Exec(ctx, query, key, status, contentType, body); err != nil {
		return fmt.Errorf("resolve idempotency record: %w", err)
	}
	return nil
}

// DeleteExpired purges records whose expiry has passed.
func (s *IdempotencyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM idempotency_keys WHERE expires_at <= $1`

	tag, err := s.db(ctx).Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ idempotency.Store = (*IdempotencyStore)(nil)
