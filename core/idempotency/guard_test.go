package idempotency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopguard/shopguard/core/idempotency"
)

func newGuard(t *testing.T, store idempotency.Store, opts ...idempotency.GuardOption) *idempotency.Guard {
	t.Helper()

	guard, err := idempotency.NewGuard(store, opts...)
	require.NoError(t, err)
	return guard
}

func checkRequest(key string) idempotency.Request {
	return idempotency.Request{
		Key:      key,
		Endpoint: "POST /orders",
		Body:     []byte(`{"sku":"A-1","qty":2}`),
		UserID:   "user-1",
	}
}

func TestNewGuardRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := idempotency.NewGuard(nil)
	assert.Error(t, err)
}

func TestCheckWithoutKeyProceeds(t *testing.T) {
	t.Parallel()

	store := idempotency.NewMemoryStore()
	guard := newGuard(t, store)

	outcome, err := guard.Check(context.Background(), idempotency.Request{
		Endpoint: "POST /orders",
		Body:     []byte(`{}`),
	})
	require.NoError(t, err)
	assert.False(t, outcome.Replay)

	// No key means no ledger entry.
	removed, err := store.DeleteExpired(context.Background(), time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCheckRejectsInvalidKeyLength(t *testing.T) {
	t.Parallel()

	guard := newGuard(t, idempotency.NewMemoryStore())

	_, err := guard.Check(context.Background(), checkRequest("short"))
	assert.ErrorIs(t, err, idempotency.ErrInvalidKey)
}

func TestCheckFirstSightCreatesPendingRecord(t *testing.T) {
	t.Parallel()

	store := idempotency.NewMemoryStore()
	guard := newGuard(t, store)

	req := checkRequest("order-key-0123456789")
	outcome, err := guard.Check(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, outcome.Replay)

	rec, err := store.Find(context.Background(), req.Key)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "POST /orders", rec.Endpoint)
	assert.Equal(t, idempotency.RequestHash(req.Endpoint, req.Body), rec.RequestHash)
	assert.False(t, rec.Resolved())
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), rec.ExpiresAt, time.Minute)
}

func TestCheckReplaysResolvedRecord(t *testing.T) {
	t.Parallel()

	store := idempotency.NewMemoryStore()
	guard := newGuard(t, store)
	ctx := context.Background()

	req := checkRequest("order-key-0123456789")
	_, err := guard.Check(ctx, req)
	require.NoError(t, err)

	require.NoError(t, guard.Resolve(ctx, req.Key, 201, "application/json; charset=utf-8", []byte(`{"id":"ord_1"}`)))

	outcome, err := guard.Check(ctx, req)
	require.NoError(t, err)
	assert.True(t, outcome.Replay)
	assert.Equal(t, 201, outcome.Status)
	assert.Equal(t, "application/json; charset=utf-8", outcome.ContentType)
	assert.JSONEq(t, `{"id":"ord_1"}`, string(outcome.Body))
}

func TestCheckRejectsForeignKey(t *testing.T) {
	t.Parallel()

	guard := newGuard(t, idempotency.NewMemoryStore())
	ctx := context.Background()

	req := checkRequest("order-key-0123456789")
	_, err := guard.Check(ctx, req)
	require.NoError(t, err)

	stolen := req
	stolen.UserID = "user-2"
	_, err = guard.Check(ctx, stolen)
	assert.ErrorIs(t, err, idempotency.ErrKeyMismatch)

	anonymous := req
	anonymous.UserID = ""
	_, err = guard.Check(ctx, anonymous)
	assert.ErrorIs(t, err, idempotency.ErrKeyMismatch)
}

func TestCheckRejectsReusedKeyForDifferentRequest(t *testing.T) {
	t.Parallel()

	guard := newGuard(t, idempotency.NewMemoryStore())
	ctx := context.Background()

	req := checkRequest("order-key-0123456789")
	_, err := guard.Check(ctx, req)
	require.NoError(t, err)

	// Same key and owner, different payload.
	changed := req
	changed.Body = []byte(`{"sku":"B-9","qty":1}`)
	_, err = guard.Check(ctx, changed)
	assert.ErrorIs(t, err, idempotency.ErrKeyConflict)

	// Same key and payload, different endpoint.
	moved := req
	moved.Endpoint = "POST /payments"
	_, err = guard.Check(ctx, moved)
	assert.ErrorIs(t, err, idempotency.ErrKeyConflict)
}

func TestCheckRejectsConcurrentDuplicate(t *testing.T) {
	t.Parallel()

	guard := newGuard(t, idempotency.NewMemoryStore())
	ctx := context.Background()

	req := checkRequest("order-key-0123456789")
	_, err := guard.Check(ctx, req)
	require.NoError(t, err)

	// Identical retry while the first attempt is still unresolved.
	_, err = guard.Check(ctx, req)
	assert.ErrorIs(t, err, idempotency.ErrInProgress)
}

func TestCheckReExecutesAbandonedRecord(t *testing.T) {
	t.Parallel()

	store := idempotency.NewMemoryStore()
	guard := newGuard(t, store, idempotency.WithPendingWindow(50*time.Millisecond))
	ctx := context.Background()

	req := checkRequest("order-key-0123456789")
	_, err := guard.Check(ctx, req)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	outcome, err := guard.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, outcome.Replay, "abandoned pending record must allow re-execution")
}

func TestCheckTreatsExpiredRecordAsAbsent(t *testing.T) {
	t.Parallel()

	store := idempotency.NewMemoryStore()
	guard := newGuard(t, store)
	ctx := context.Background()

	stale := &idempotency.Record{
		Key:            "order-key-0123456789",
		UserID:         "someone-else",
		Endpoint:       "POST /payments",
		RequestHash:    "stale-hash",
		ResponseStatus: 201,
		ResponseBody:   []byte(`{"id":"old"}`),
		CreatedAt:      time.Now().Add(-48 * time.Hour),
		ExpiresAt:      time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, store.Create(ctx, stale))

	// The expired record must not replay, conflict, or mismatch; the key
	// is simply reclaimed by the new caller.
	req := checkRequest(stale.Key)
	outcome, err := guard.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, outcome.Replay)

	rec, err := store.Find(ctx, stale.Key)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.False(t, rec.Resolved())
}

func TestCheckReplaysNonJSONResponse(t *testing.T) {
	t.Parallel()

	store := idempotency.NewMemoryStore()
	guard := newGuard(t, store)
	ctx := context.Background()

	req := checkRequest("order-key-0123456789")
	_, err := guard.Check(ctx, req)
	require.NoError(t, err)

	// Replay returns the stored bytes as captured; a plain-text body must
	// short-circuit the handler just like a JSON one.
	require.NoError(t, guard.Resolve(ctx, req.Key, 201, "text/plain; charset=utf-8", []byte("order created")))

	outcome, err := guard.Check(ctx, req)
	require.NoError(t, err)
	assert.True(t, outcome.Replay)
	assert.Equal(t, 201, outcome.Status)
	assert.Equal(t, "text/plain; charset=utf-8", outcome.ContentType)
	assert.Equal(t, "order created", string(outcome.Body))
}

type flakyStore struct {
	idempotency.Store

	findErr   error
	createErr error
}

func (s *flakyStore) Find(ctx context.Context, key string) (*idempotency.Record, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Store.Find(ctx, key)
}

func (s *flakyStore) Create(ctx context.Context, record *idempotency.Record) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.Store.Create(ctx, record)
}

func TestCheckFailsOpenOnLookupError(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: idempotency.NewMemoryStore(), findErr: errors.New("ledger down")}
	guard := newGuard(t, store)

	outcome, err := guard.Check(context.Background(), checkRequest("order-key-0123456789"))
	require.NoError(t, err)
	assert.False(t, outcome.Replay)
}

func TestCheckFailsOpenOnCreateError(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: idempotency.NewMemoryStore(), createErr: errors.New("ledger down")}
	guard := newGuard(t, store)

	outcome, err := guard.Check(context.Background(), checkRequest("order-key-0123456789"))
	require.NoError(t, err)
	assert.False(t, outcome.Replay)
}

type racingStore struct {
	idempotency.Store
}

func (s *racingStore) Create(ctx context.Context, record *idempotency.Record) error {
	// Simulate a concurrent request winning the insert between Find and Create.
	winner := *record
	winner.ResponseStatus = 200
	winner.ResponseBody = []byte(`{"id":"winner"}`)
	if err := s.Store.Create(ctx, &winner); err != nil {
		return err
	}
	return idempotency.ErrDuplicateKey
}

func TestCheckLostCreationRaceReplaysWinner(t *testing.T) {
	t.Parallel()

	guard := newGuard(t, &racingStore{Store: idempotency.NewMemoryStore()})

	outcome, err := guard.Check(context.Background(), checkRequest("order-key-0123456789"))
	require.NoError(t, err)
	assert.True(t, outcome.Replay)
	assert.JSONEq(t, `{"id":"winner"}`, string(outcome.Body))
}

func TestResolveEmptyKeyIsNoop(t *testing.T) {
	t.Parallel()

	guard := newGuard(t, idempotency.NewMemoryStore())

	assert.NoError(t, guard.Resolve(context.Background(), "", 200, "", nil))
}

func TestGuardSweepPurgesExpiredRecords(t *testing.T) {
	t.Parallel()

	store := idempotency.NewMemoryStore()
	guard := newGuard(t, store, idempotency.WithCleanupInterval(20*time.Millisecond))
	ctx := context.Background()

	expired := pendingRecord("dead-key-0123456789abc")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Create(ctx, expired))

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = guard.Start(runCtx) }()
	t.Cleanup(func() { _ = guard.Stop() })

	require.Eventually(t, func() bool {
		_, err := store.Find(ctx, expired.Key)
		return errors.Is(err, idempotency.ErrNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestGuardLifecycle(t *testing.T) {
	t.Parallel()

	guard := newGuard(t, idempotency.NewMemoryStore(),
		idempotency.WithCleanupInterval(10*time.Millisecond))

	assert.Error(t, guard.Stop(), "stop before start should fail")
	assert.Error(t, guard.Healthcheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan error, 1)
	go func() { started <- guard.Start(ctx) }()

	require.Eventually(t, func() bool {
		return guard.Healthcheck(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, guard.Start(ctx), "second start should fail")

	require.NoError(t, guard.Stop())
	assert.ErrorIs(t, <-started, context.Canceled)
}
