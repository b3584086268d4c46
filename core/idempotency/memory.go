package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory ledger for tests and single-process
// development setups. Durable deployments use the PostgreSQL or Redis
// stores under integration/database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Find returns a copy of the record for key, or ErrNotFound.
func (ms *MemoryStore) Find(ctx context.Context, key string) (*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	rec, ok := ms.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Create inserts a pending record, enforcing key uniqueness.
// An expired record under the same key is overwritten.
func (ms *MemoryStore) Create(ctx context.Context, record *Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if existing, ok := ms.records[record.Key]; ok && !existing.Expired(time.Now()) {
		return ErrDuplicateKey
	}

	cp := *record
	ms.records[record.Key] = &cp
	return nil
}

// Resolve stores the response on a pending record. Absent records are a
// no-op; already-resolved records keep their first response.
func (ms *MemoryStore) Resolve(ctx context.Context, key string, status int, contentType string, body []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, ok := ms.records[key]
	if !ok || rec.Resolved() {
		return nil
	}
	rec.ResponseStatus = status
	rec.ResponseContentType = contentType
	rec.ResponseBody = body
	return nil
}

// DeleteExpired purges records whose expiry has passed.
func (ms *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var removed int64
	for key, rec := range ms.records {
		if rec.Expired(now) {
			delete(ms.records, key)
			removed++
		}
	}
	return removed, nil
}

// Healthcheck always succeeds for the in-memory ledger.
func (ms *MemoryStore) Healthcheck(ctx context.Context) error {
	return nil
}
