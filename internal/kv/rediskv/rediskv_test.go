package rediskv

import "testing"

func TestLexBound(t *testing.T) {
	cases := []struct {
		name      string
		b         []byte
		inclusive bool
		want      string
	}{
		{"nil inclusive is open start", nil, true, "-"},
		{"nil exclusive is open end", nil, false, "+"},
		{"inclusive bound", []byte("abc"), true, "[abc"},
		{"exclusive bound", []byte("abc"), false, "(abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lexBound(tc.b, tc.inclusive); got != tc.want {
				t.Fatalf("lexBound(%q, %v) = %q, want %q", tc.b, tc.inclusive, got, tc.want)
			}
		})
	}
}
