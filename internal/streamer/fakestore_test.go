package streamer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"streamkeeper/internal/kv"
	"streamkeeper/internal/kv/memkv"
)

// failingStore wraps a memkv.Store and fails specific PutBatch calls by
// call index (1-based), used to drive the pipelined-abort scenario.
type failingStore struct {
	inner   *memkv.Store
	failAt  map[int]bool
	gate    map[int]chan struct{} // optional: block call N until its gate closes
	calls   atomic.Int64
	mu      sync.Mutex
}

func newFailingStore() *failingStore {
	return &failingStore{inner: memkv.New(), failAt: map[int]bool{}, gate: map[int]chan struct{}{}}
}

func (f *failingStore) PutBatch(ctx context.Context, entries []kv.Entry) error {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	gate := f.gate[n]
	fail := f.failAt[n]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return errors.New("injected failure")
	}
	return f.inner.PutBatch(ctx, entries)
}

func (f *failingStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	return f.inner.Get(ctx, key)
}

func (f *failingStore) Scan(ctx context.Context, opts kv.ScanOptions) (kv.Iterator, error) {
	return f.inner.Scan(ctx, opts)
}

func (f *failingStore) Close() error { return f.inner.Close() }

var _ kv.Store = (*failingStore)(nil)
