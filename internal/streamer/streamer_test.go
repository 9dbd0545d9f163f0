package streamer

import (
	"context"
	"testing"
	"time"

	"streamkeeper/internal/config"
	"streamkeeper/internal/kv"
	"streamkeeper/internal/kv/memkv"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
)

func startStreamer(t *testing.T, store kv.Store, clock streamid.Clock, depth int) *Streamer {
	t.Helper()
	id := streamid.Derive("basin", "stream")
	s := New(id, Options{Store: store, Clock: clock, PipelineDepth: depth})
	go s.Run(context.Background())
	if err := s.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestAppendAcknowledgesAndAdvancesTail(t *testing.T) {
	store := memkv.New()
	clk := streamid.NewFixedClock(1000)
	s := startStreamer(t, store, clk, 1)

	res := s.Submit(&AppendRequest{
		Ctx: context.Background(),
		Records: []AppendRecordIn{
			{Body: []byte("a")},
			{Body: []byte("b")},
		},
	})
	if res.Err != nil {
		t.Fatalf("Submit: %v", res.Err)
	}
	if res.FirstSeq != 0 || res.LastSeq != 1 {
		t.Fatalf("got FirstSeq=%d LastSeq=%d, want 0,1", res.FirstSeq, res.LastSeq)
	}
	tailPos := s.CheckTail()
	if tailPos.NextSeq != 2 {
		t.Fatalf("got NextSeq=%d, want 2", tailPos.NextSeq)
	}
}

func TestWrongSeqRejected(t *testing.T) {
	store := memkv.New()
	clk := streamid.NewFixedClock(1000)
	s := startStreamer(t, store, clk, 1)

	bad := uint64(5)
	res := s.Submit(&AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Body: []byte("x")}}, MatchSeq: &bad})
	if streamerr.KindOf(res.Err) != streamerr.KindWrongSeq {
		t.Fatalf("expected WrongSeq, got %v", res.Err)
	}
}

func TestEmptyBatchRejected(t *testing.T) {
	store := memkv.New()
	clk := streamid.NewFixedClock(1000)
	s := startStreamer(t, store, clk, 1)

	res := s.Submit(&AppendRequest{Ctx: context.Background()})
	if streamerr.KindOf(res.Err) != streamerr.KindInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", res.Err)
	}
}

func TestTimestampMonotonicityClamped(t *testing.T) {
	store := memkv.New()
	clk := streamid.NewFixedClock(1000)
	s := startStreamer(t, store, clk, 1)

	high := uint64(5000)
	res := s.Submit(&AppendRequest{
		Ctx:     context.Background(),
		Records: []AppendRecordIn{{Timestamp: &high, Body: []byte("x")}},
	})
	if res.Err != nil {
		t.Fatalf("Submit: %v", res.Err)
	}
	if res.LastTs != high {
		t.Fatalf("got LastTs=%d, want %d", res.LastTs, high)
	}

	// Clock-assigned record must never move the stream timestamp backwards,
	// even though the clock (1000) is behind the last record's timestamp.
	res = s.Submit(&AppendRequest{
		Ctx:     context.Background(),
		Records: []AppendRecordIn{{Body: []byte("y")}},
	})
	if res.Err != nil {
		t.Fatalf("Submit: %v", res.Err)
	}
	if res.LastTs != high {
		t.Fatalf("expected clamped LastTs=%d, got %d", high, res.LastTs)
	}
}

func TestStrictTimestampsRejectsNonMonotonic(t *testing.T) {
	store := memkv.New()
	clk := streamid.NewFixedClock(1000)
	id := streamid.Derive("basin", "strict")
	s := New(id, Options{Store: store, Clock: clk, PipelineDepth: 1, StreamConfig: config.StreamConfig{StrictClientTimestamps: true}})
	go s.Run(context.Background())
	if err := s.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	defer s.Stop()

	first := uint64(2000)
	res := s.Submit(&AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Timestamp: &first, Body: []byte("a")}}})
	if res.Err != nil {
		t.Fatalf("Submit: %v", res.Err)
	}

	earlier := uint64(1000)
	res = s.Submit(&AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Timestamp: &earlier, Body: []byte("b")}}})
	if streamerr.KindOf(res.Err) != streamerr.KindNonMonotonicTimestamp {
		t.Fatalf("expected NonMonotonicTimestamp, got %v", res.Err)
	}
}

func TestResumesFromPersistedTail(t *testing.T) {
	store := memkv.New()
	clk := streamid.NewFixedClock(5000)
	s := startStreamer(t, store, clk, 1)

	res := s.Submit(&AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Body: []byte("a")}, {Body: []byte("b")}}})
	if res.Err != nil {
		t.Fatalf("Submit: %v", res.Err)
	}
	s.Stop()

	id := streamid.Derive("basin", "stream")
	s2 := New(id, Options{Store: store, Clock: clk, PipelineDepth: 1})
	go s2.Run(context.Background())
	if err := s2.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	defer s2.Stop()

	pos := s2.CheckTail()
	if pos.NextSeq != 2 {
		t.Fatalf("got NextSeq=%d, want 2", pos.NextSeq)
	}
}

// TestPipelinedAbortRollsBackTail exercises the scenario where, with
// pipeline depth 3, the second of three concurrently in-flight batches
// fails: the first is acknowledged, the second reports Unavailable, the
// third is aborted without ever reaching the store's outcome, and the
// speculative tail rolls back to the position right after the first
// batch so the next append reclaims the sequence number.
func TestPipelinedAbortRollsBackTail(t *testing.T) {
	fs := newFailingStore()
	fs.failAt[2] = true
	clk := streamid.NewFixedClock(1000)

	id := streamid.Derive("basin", "pipelined")
	s := New(id, Options{Store: fs, Clock: clk, PipelineDepth: 3})
	go s.Run(context.Background())
	if err := s.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	defer s.Stop()

	req1 := &AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Body: []byte("1")}}, reply: make(chan AppendResult, 1)}
	req2 := &AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Body: []byte("2")}}, reply: make(chan AppendResult, 1)}
	req3 := &AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Body: []byte("3")}}, reply: make(chan AppendResult, 1)}

	s.inbox <- req1
	s.inbox <- req2
	s.inbox <- req3

	res1 := waitReply(t, req1.reply)
	res2 := waitReply(t, req2.reply)
	res3 := waitReply(t, req3.reply)

	if res1.Err != nil {
		t.Fatalf("batch 1 should ack, got %v", res1.Err)
	}
	if res1.FirstSeq != 0 || res1.LastSeq != 0 {
		t.Fatalf("batch 1 got seq [%d,%d], want [0,0]", res1.FirstSeq, res1.LastSeq)
	}
	if streamerr.KindOf(res2.Err) != streamerr.KindUnavailable {
		t.Fatalf("batch 2 should be Unavailable, got %v", res2.Err)
	}
	if streamerr.KindOf(res3.Err) != streamerr.KindAborted {
		t.Fatalf("batch 3 should be Aborted, got %v", res3.Err)
	}

	pos := s.CheckTail()
	if pos.NextSeq != 1 {
		t.Fatalf("expected tail rolled back to NextSeq=1 after batch 1, got %d", pos.NextSeq)
	}

	// A subsequent append reclaims the sequence number that batch 2 would
	// have used.
	res4 := s.Submit(&AppendRequest{Ctx: context.Background(), Records: []AppendRecordIn{{Body: []byte("4")}}})
	if res4.Err != nil {
		t.Fatalf("Submit after rollback: %v", res4.Err)
	}
	if res4.FirstSeq != 1 {
		t.Fatalf("expected reclaimed seq 1, got %d", res4.FirstSeq)
	}
}

func waitReply(t *testing.T, ch chan AppendResult) AppendResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply")
	}
	return AppendResult{}
}
