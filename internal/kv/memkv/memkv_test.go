package memkv

import (
	"context"
	"testing"
	"time"

	"streamkeeper/internal/kv"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.PutBatch(ctx, []kv.Entry{{Key: []byte("a"), Value: []byte("1")}})
	if err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	v, err := s.Get(ctx, []byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "1" {
		t.Fatalf("got %q, want 1", v)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), []byte("missing"))
	if err != kv.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScanForwardOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	keys := []string{"c", "a", "b"}
	for _, k := range keys {
		if err := s.PutBatch(ctx, []kv.Entry{{Key: []byte(k), Value: []byte(k)}}); err != nil {
			t.Fatalf("PutBatch: %v", err)
		}
	}
	it, err := s.Scan(ctx, kv.ScanOptions{Start: []byte("a"), End: []byte("z"), Direction: kv.Forward})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next(ctx) {
		got = append(got, string(it.Pair().Key))
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestScanBackward(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_ = s.PutBatch(ctx, []kv.Entry{{Key: []byte(k), Value: []byte(k)}})
	}
	it, err := s.Scan(ctx, kv.ScanOptions{Start: []byte("c"), End: []byte("a"), Direction: kv.Backward, Limit: 1})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	if !it.Next(ctx) {
		t.Fatalf("expected at least one result")
	}
	if string(it.Pair().Key) != "c" {
		t.Fatalf("got %q, want c", it.Pair().Key)
	}
	if it.Next(ctx) {
		t.Fatalf("expected limit 1 to stop iteration")
	}
}

func TestTTLExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.PutBatch(ctx, []kv.Entry{{Key: []byte("temp"), Value: []byte("x"), TTL: time.Millisecond}}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	_, err := s.Get(ctx, []byte("temp"))
	if err != kv.ErrNotFound {
		t.Fatalf("expected expired entry to read as ErrNotFound, got %v", err)
	}
}

func TestScanSeesWholeBatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.PutBatch(ctx, []kv.Entry{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: []byte("k2"), Value: []byte("v2")},
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	it, err := s.Scan(ctx, kv.ScanOptions{Start: []byte("k1"), End: []byte("k3"), Direction: kv.Forward})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	count := 0
	for it.Next(ctx) {
		count++
	}
	if count != 2 {
		t.Fatalf("got %d pairs, want 2", count)
	}
}
