package config

import (
	"context"
	"testing"
	"time"

	"streamkeeper/internal/kv/memkv"
	"streamkeeper/internal/streamerr"
)

func TestStaticSourceRoundTrip(t *testing.T) {
	s := NewStaticSource()
	s.PutBasin("b1", BasinConfig{AutoCreateStreams: true})
	if err := s.PutStream(context.Background(), "b1", "s1", StreamConfig{RetentionSeconds: 60}); err != nil {
		t.Fatalf("PutStream: %v", err)
	}

	bc, err := s.Basin(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Basin: %v", err)
	}
	if !bc.AutoCreateStreams {
		t.Fatalf("expected AutoCreateStreams=true")
	}

	sc, err := s.Stream(context.Background(), "b1", "s1")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if sc.Retention() != 60*time.Second {
		t.Fatalf("got retention %v, want 60s", sc.Retention())
	}
}

func TestStaticSourceMissingIsNotFound(t *testing.T) {
	s := NewStaticSource()
	_, err := s.Basin(context.Background(), "missing")
	if streamerr.KindOf(err) != streamerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestKVSourceRoundTrip(t *testing.T) {
	store := memkv.New()
	s := NewKVSource(store)
	ctx := context.Background()

	if err := s.PutBasin(ctx, "b1", BasinConfig{AutoCreateStreams: true, DefaultRetention: 30 * time.Second}); err != nil {
		t.Fatalf("PutBasin: %v", err)
	}
	bc, err := s.Basin(ctx, "b1")
	if err != nil {
		t.Fatalf("Basin: %v", err)
	}
	if !bc.AutoCreateStreams || bc.DefaultRetention != 30*time.Second {
		t.Fatalf("got %+v", bc)
	}

	if err := s.PutStream(ctx, "b1", "s1", StreamConfig{RetentionSeconds: 120, StrictClientTimestamps: true, PipelineDepth: 4}); err != nil {
		t.Fatalf("PutStream: %v", err)
	}
	sc, err := s.Stream(ctx, "b1", "s1")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if sc.RetentionSeconds != 120 || !sc.StrictClientTimestamps || sc.PipelineDepth != 4 {
		t.Fatalf("got %+v", sc)
	}
}

func TestKVSourceMissingIsNotFound(t *testing.T) {
	store := memkv.New()
	s := NewKVSource(store)
	_, err := s.Stream(context.Background(), "b", "nope")
	if streamerr.KindOf(err) != streamerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
