// Package redis provides the Redis-backed idempotency ledger along with
// client initialization and health checking.
//
// Records are stored as JSON values with a TTL equal to the record's
// retention, so expiry is native: Redis removes dead records itself and
// the sweep's DeleteExpired is a no-op kept for interface parity. Key
// uniqueness at creation is enforced with SET NX.
//
//	client, err := redis.Connect(ctx, redis.Config{ConnectionURL: "redis://localhost:6379/0"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	store := redis.NewIdempotencyStore(client)
//	guard, err := idempotency.NewGuard(store)
package redis
