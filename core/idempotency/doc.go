// Package idempotency makes mutating operations safe to retry.
//
// A client supplies an opaque idempotency key with a mutating request.
// The Guard records the key in a durable ledger before the operation runs
// and stores the response once it completes. Retries bearing the same key
// replay the recorded response instead of executing the operation again;
// reuse of a key by another caller or against a different request body is
// rejected.
//
// The ledger is an external collaborator behind the Store interface, with
// PostgreSQL and Redis implementations under integration/database and an
// in-memory implementation in this package for tests and development.
//
// The read-then-create sequence for a fresh key is not atomic: two
// near-simultaneous first requests can both observe "no record". The Store
// must enforce key uniqueness at creation, and the Guard treats the losing
// writer's ErrDuplicateKey as "record now exists" and re-reads. Mutual
// exclusion for in-flight duplicates is approximated, not guaranteed: a
// pending record younger than the pending window rejects retries with
// ErrInProgress, while an older one is presumed abandoned and re-executed.
// There is no heartbeat, so a handler legitimately running longer than the
// pending window loses its claim; the Guard logs a warning when it takes
// over such a record.
//
// The Guard fails open: if the ledger is unreachable the request proceeds
// without protection rather than turning the safety layer into an outage.
//
// Expired records are purged by a background sweep with the same
// Start/Stop/Run lifecycle as the rate limiter's counter store.
package idempotency
