package firestore

import (
	"context"
	"errors"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Subscription is a cancellable stream of query result snapshots. Consumers
// receive the full decoded result set every time the underlying query changes.
// The channel closes once the subscription stops or fails; Err reports why.
type Subscription[T any] struct {
	updates chan []Document[T]

	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	stopOnce sync.Once
}

// Updates returns the snapshot channel. Stale snapshots are replaced when the
// consumer lags; only the latest result set is ever pending.
func (s *Subscription[T]) Updates() <-chan []Document[T] {
	return s.updates
}

// Stop cancels the subscription and releases the underlying listener.
func (s *Subscription[T]) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Err reports the terminal error after the updates channel closed, if any.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Watch subscribes to the query and streams decoded snapshots until the
// context is cancelled or Stop is called.
func (r *BaseRepository[T]) Watch(ctx context.Context, build QueryBuilder) (*Subscription[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription[T]{
		updates: make(chan []Document[T], 1),
		cancel:  cancel,
	}

	snapshots := query.Snapshots(watchCtx)

	go func() {
		defer close(sub.updates)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				sub.setErr(WrapError(r.op("watch"), err))
				return
			}

			docs, err := r.drainSnapshot(watchCtx, snap)
			if err != nil {
				sub.setErr(err)
				return
			}

			// Latest-wins delivery: replace a pending snapshot the
			// consumer has not picked up yet.
			select {
			case sub.updates <- docs:
			default:
				select {
				case <-sub.updates:
				default:
				}
				sub.updates <- docs
			}
		}
	}()

	return sub, nil
}

func (r *BaseRepository[T]) drainSnapshot(ctx context.Context, snap *firestore.QuerySnapshot) ([]Document[T], error) {
	docs := make([]Document[T], 0, snap.Size)
	for {
		snapshot, err := snap.Documents.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("watch"), err)
		}
		decoded, err := r.decodeDocument(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded)
	}
}
