package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local runs without a
// database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Claim reserves the key or reports its current state.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, retention time.Duration) (Claim, error) {
	now = now.UTC()
	if retention <= 0 {
		retention = DefaultRetention
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	if record, ok := s.records[id]; ok && (record.ExpiresAt.IsZero() || now.Before(record.ExpiresAt)) {
		if record.Fingerprint != fingerprint {
			return Claim{}, ErrFingerprintMismatch
		}
		if record.Completed {
			return Claim{State: StateReplay, Record: record}, nil
		}
		return Claim{State: StateInFlight, Record: record}, nil
	}

	record := Record{
		Key:         key,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(retention),
	}
	s.records[id] = record
	return Claim{State: StateNew, Record: record}, nil
}

// Complete stores the response for replay.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, status int, contentType string, body []byte, now time.Time, retention time.Duration) error {
	now = now.UTC()
	if retention <= 0 {
		retention = DefaultRetention
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}

	record.Completed = true
	record.ResponseStatus = status
	record.ContentType = contentType
	if len(body) > 0 {
		record.ResponseBody = append([]byte(nil), body...)
	} else {
		record.ResponseBody = nil
	}
	record.ExpiresAt = now.Add(retention)
	s.records[id] = record
	return nil
}

// Release drops the claim for the key.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, docID(key))
	return nil
}
