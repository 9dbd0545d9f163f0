//go:build e2e

package rediskv

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"streamkeeper/internal/kv"
)

// TestStoreRoundTripE2E exercises the real Redis adapter path. Requires a
// Redis at 127.0.0.1:6379.
func TestStoreRoundTripE2E(t *testing.T) {
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: Redis not reachable on 127.0.0.1:6379: %v", err)
	}
	defer rc.Close()

	ns := "streamkeeper-test"
	rc.Del(context.Background(), ns+":idx")

	s := New(rc, ns)
	defer s.Close()

	entries := []kv.Entry{
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	if err := s.PutBatch(context.Background(), entries); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	v, err := s.Get(context.Background(), []byte("a"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "1" {
		t.Fatalf("got %q, want 1", v)
	}

	it, err := s.Scan(context.Background(), kv.ScanOptions{Start: []byte("a"), End: []byte("z"), Direction: kv.Forward})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	var got []string
	for it.Next(context.Background()) {
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
