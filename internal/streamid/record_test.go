package streamid

import (
	"bytes"
	"testing"

	"streamkeeper/internal/streamerr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := Record{
		SeqNum:    42,
		Timestamp: 1700000000000,
		Headers: []Header{
			{Name: []byte("content-type"), Value: []byte("application/json")},
			{Name: []byte("x-empty"), Value: nil},
		},
		Body: []byte("hello stream"),
	}

	buf := Encode(r)
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SeqNum != r.SeqNum || got.Timestamp != r.Timestamp {
		t.Fatalf("seq/timestamp mismatch: %+v vs %+v", got, r)
	}
	if !bytes.Equal(got.Body, r.Body) {
		t.Fatalf("body mismatch: %q vs %q", got.Body, r.Body)
	}
	if len(got.Headers) != len(r.Headers) {
		t.Fatalf("header count mismatch: %d vs %d", len(got.Headers), len(r.Headers))
	}
	for i := range r.Headers {
		if !bytes.Equal(got.Headers[i].Name, r.Headers[i].Name) || !bytes.Equal(got.Headers[i].Value, r.Headers[i].Value) {
			t.Fatalf("header %d mismatch: %+v vs %+v", i, got.Headers[i], r.Headers[i])
		}
	}
}

func TestEncodeDecodeNoHeadersNoBody(t *testing.T) {
	r := Record{SeqNum: 0, Timestamp: 5}
	got, err := Decode(Encode(r))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SeqNum != 0 || got.Timestamp != 5 || len(got.Headers) != 0 || len(got.Body) != 0 {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestDecodeTruncatedIsCorrupt(t *testing.T) {
	buf := Encode(Record{SeqNum: 1, Timestamp: 2, Body: []byte("abc")})
	_, err := Decode(buf[:len(buf)-2])
	if err == nil {
		t.Fatalf("expected error decoding truncated buffer")
	}
	if streamerr.KindOf(err) != streamerr.KindCorrupt {
		t.Fatalf("expected Corrupt kind, got %v", streamerr.KindOf(err))
	}
}

func TestDecodeTrailingGarbageIsCorrupt(t *testing.T) {
	buf := Encode(Record{SeqNum: 1, Timestamp: 2, Body: []byte("abc")})
	buf = append(buf, 0xff, 0xff)
	_, err := Decode(buf)
	if streamerr.KindOf(err) != streamerr.KindCorrupt {
		t.Fatalf("expected Corrupt kind, got %v", streamerr.KindOf(err))
	}
}

func TestDecodeEmptyIsCorrupt(t *testing.T) {
	_, err := Decode(nil)
	if streamerr.KindOf(err) != streamerr.KindCorrupt {
		t.Fatalf("expected Corrupt kind for empty buffer, got %v", streamerr.KindOf(err))
	}
}

func TestDecodeBogusHeaderCountIsCorruptNotOOM(t *testing.T) {
	buf := Encode(Record{SeqNum: 1, Timestamp: 2, Body: []byte("abc")})
	// Overwrite header_count (the be_u32 right after seq_num/timestamp)
	// with a huge value that the tiny remaining buffer can't possibly hold.
	buf[16], buf[17], buf[18], buf[19] = 0xff, 0xff, 0xff, 0xff
	_, err := Decode(buf)
	if streamerr.KindOf(err) != streamerr.KindCorrupt {
		t.Fatalf("expected Corrupt kind, got %v", streamerr.KindOf(err))
	}
}
