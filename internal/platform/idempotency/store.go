// Package idempotency guards mutating endpoints against duplicate
// submissions. A client sends an Idempotency-Key header; the first request
// records its response and retries with the same key replay it instead of
// re-executing the handler. Checkout uses this so a double-clicked submit
// never places two orders.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultRetention is how long completed records are kept before a key may
// be reused.
const DefaultRetention = 24 * time.Hour

// State describes the outcome of claiming a key.
type State int

const (
	// StateNew means the key was unclaimed and the request should proceed.
	StateNew State = iota
	// StateReplay means a stored response exists and should be returned as is.
	StateReplay
	// StateInFlight means another request holding the key has not finished yet.
	StateInFlight
)

// Record is the persisted outcome for a claimed key.
type Record struct {
	Key            string
	Fingerprint    string
	Completed      bool
	ResponseStatus int
	ContentType    string
	ResponseBody   []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Claim is the result of attempting to take a key.
type Claim struct {
	State  State
	Record Record
}

// Store persists key claims and their recorded responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, retention time.Duration) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, status int, contentType string, body []byte, now time.Time, retention time.Duration) error
	Release(ctx context.Context, key string) error
}

// ErrFingerprintMismatch is returned when a key is reused with a different
// request payload.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

// docID hashes the scoped key so arbitrary client input never becomes a raw
// document identifier.
func docID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func fingerprintOf(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
