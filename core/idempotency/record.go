package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Key length bounds for client-supplied idempotency keys.
const (
	MinKeyLength = 16
	MaxKeyLength = 256
)

// Record is one entry in the idempotency ledger. Key, owner binding,
// endpoint and request hash are immutable once created; the response
// fields are set exactly once when the guarded operation resolves.
type Record struct {
	Key            string
	UserID         string // empty for anonymous callers
	SessionID      string // empty when no session is bound
	Endpoint            string
	RequestHash         string
	ResponseStatus      int    // 0 while pending
	ResponseContentType string // empty while pending
	ResponseBody        []byte // nil while pending
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Resolved reports whether the guarded operation has recorded its response.
func (r *Record) Resolved() bool {
	return r.ResponseStatus != 0
}

// Expired reports whether the record is logically dead at the given time.
// Expired records must never short-circuit a request.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// OwnedBy reports whether the record is bound to the given caller identity.
// Both user and session must match; anonymous callers (empty pair) own
// records created anonymously.
func (r *Record) OwnedBy(userID, sessionID string) bool {
	return r.UserID == userID && r.SessionID == sessionID
}

// ValidKey reports whether a client-supplied key satisfies the length bounds.
func ValidKey(key string) bool {
	return len(key) >= MinKeyLength && len(key) <= MaxKeyLength
}

// RequestHash computes the digest binding a key to one logical request:
// SHA-256 over the endpoint, a separator, and the canonical request body.
func RequestHash(endpoint string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte(":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
