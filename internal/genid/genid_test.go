package genid

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 63, 64, 65, 4095, 123456789, 1<<53 - 1, 1<<60 + 17} {
		s := Encode(v, 0, "")
		got, err := Decode(s, "")
		if err != nil {
			t.Fatalf("Decode(%q): %v", s, err)
		}
		if got != v {
			t.Errorf("Decode(Encode(%d)) = %d", v, got)
		}
	}
}

func TestEncodePadding(t *testing.T) {
	s := Encode(1, 10, "")
	if len(s) != 10 {
		t.Fatalf("Encode(1, 10) length = %d, want 10", len(s))
	}
	if !strings.HasPrefix(s, strings.Repeat("A", 9)) {
		t.Errorf("Encode(1, 10) = %q, want leading zero digits", s)
	}
	v, err := Decode(s, "")
	if err != nil || v != 1 {
		t.Errorf("Decode(%q) = %d, %v, want 1", s, v, err)
	}
}

func TestEncodeCustomAlphabet(t *testing.T) {
	const hex = "0123456789abcdef"
	if got := Encode(255, 0, hex); got != "ff" {
		t.Errorf("Encode(255, hex) = %q, want ff", got)
	}
	v, err := Decode("ff", hex)
	if err != nil || v != 255 {
		t.Errorf("Decode(ff, hex) = %d, %v", v, err)
	}
}

func TestDecodeRejectsBadDigit(t *testing.T) {
	if _, err := Decode("ab!", ""); err == nil {
		t.Fatal("expected error for character outside alphabet")
	}
}

func TestRandomLengthAndCharset(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		id := Random(0)
		if len(id) != DefaultRandomLength {
			t.Fatalf("Random(0) length = %d, want %d", len(id), DefaultRandomLength)
		}
		for _, r := range id {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("Random id %q contains %q outside alphabet", id, r)
			}
		}
		if seen[id] {
			t.Fatalf("Random produced duplicate %q within 200 draws", id)
		}
		seen[id] = true
	}
	if got := Random(24); len(got) != 24 {
		t.Errorf("Random(24) length = %d", len(got))
	}
}

func TestContentHashDeterministic(t *testing.T) {
	type doc struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}
	a := doc{Name: "pizza", Count: 3, Tags: []string{"food"}}

	first, err := ContentHash(a, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != DefaultHashLength {
		t.Fatalf("hash length = %d, want %d", len(first), DefaultHashLength)
	}
	second, err := ContentHash(a, 0)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("same document hashed to %q and %q", first, second)
	}

	b := a
	b.Count = 4
	other, err := ContentHash(b, 0)
	if err != nil {
		t.Fatal(err)
	}
	if other == first {
		t.Errorf("different documents share hash %q", first)
	}
}

func TestContentHashKeyOrderIndependent(t *testing.T) {
	// Maps with the same content must hash identically regardless of
	// insertion order.
	m1 := map[string]any{"a": 1.0, "b": "x", "c": []any{"y"}}
	m2 := map[string]any{"c": []any{"y"}, "b": "x", "a": 1.0}
	h1, err := ContentHash(m1, 16)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ContentHash(m2, 16)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %q vs %q", h1, h2)
	}
}

func TestContentHashSecret(t *testing.T) {
	defer SetHashSecret("")
	before, err := ContentHash("payload", 0)
	if err != nil {
		t.Fatal(err)
	}
	SetHashSecret("other-secret")
	after, err := ContentHash("payload", 0)
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Error("changing the secret did not change the hash")
	}
}
