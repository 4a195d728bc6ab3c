package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "idempotencyKeys"
	defaultMaxAttempts = 5
)

// FirestoreOption customises the Firestore-backed store.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding key records.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// FirestoreStore implements Store on top of Firestore. Claiming a key is a
// transaction so two concurrent requests with the same key cannot both win.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{
		client:     client,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type keyDocument struct {
	Key            string    `firestore:"key"`
	Fingerprint    string    `firestore:"fingerprint"`
	Completed      bool      `firestore:"completed"`
	ResponseStatus int       `firestore:"responseStatus"`
	ContentType    string    `firestore:"contentType"`
	ResponseBody   []byte    `firestore:"responseBody"`
	CreatedAt      time.Time `firestore:"createdAt"`
	ExpiresAt      time.Time `firestore:"expiresAt"`
}

func (d keyDocument) toRecord() Record {
	return Record{
		Key:            d.Key,
		Fingerprint:    d.Fingerprint,
		Completed:      d.Completed,
		ResponseStatus: d.ResponseStatus,
		ContentType:    d.ContentType,
		ResponseBody:   d.ResponseBody,
		CreatedAt:      d.CreatedAt,
		ExpiresAt:      d.ExpiresAt,
	}
}

// Claim reserves the key for the caller or reports its current state.
func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, retention time.Duration) (Claim, error) {
	now = now.UTC()
	if retention <= 0 {
		retention = DefaultRetention
	}
	ref := s.client.Collection(s.collection).Doc(docID(key))

	var claim Claim
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if err == nil {
			var doc keyDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			// Expired records are reclaimed as if the key were fresh.
			if doc.ExpiresAt.IsZero() || now.Before(doc.ExpiresAt) {
				if doc.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				if doc.Completed {
					claim = Claim{State: StateReplay, Record: doc.toRecord()}
				} else {
					claim = Claim{State: StateInFlight, Record: doc.toRecord()}
				}
				return nil
			}
		}

		doc := keyDocument{
			Key:         key,
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(retention),
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		claim = Claim{State: StateNew, Record: doc.toRecord()}
		return nil
	}, firestore.MaxAttempts(defaultMaxAttempts))

	return claim, err
}

// Complete stores the response to replay for later requests with the key.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, respStatus int, contentType string, body []byte, now time.Time, retention time.Duration) error {
	now = now.UTC()
	if retention <= 0 {
		retention = DefaultRetention
	}
	ref := s.client.Collection(s.collection).Doc(docID(key))

	var bodyCopy []byte
	if len(body) > 0 {
		bodyCopy = append([]byte(nil), body...)
	}

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		doc := keyDocument{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
		} else {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		}

		doc.Completed = true
		doc.ResponseStatus = respStatus
		doc.ContentType = contentType
		doc.ResponseBody = bodyCopy
		doc.ExpiresAt = now.Add(retention)
		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(defaultMaxAttempts))
}

// Release drops the claim so the client may retry after a handler failure
// that never produced a durable response.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(docID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}
