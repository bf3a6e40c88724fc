package canonicalize

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJCSSortsKeys(t *testing.T) {
	got, err := JCSString(map[string]any{"zebra": 1, "apple": 2, "mango": 3})
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	want := `{"apple":2,"mango":3,"zebra":1}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestJCSNestedSorting(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{
			"b": []any{map[string]any{"y": 1, "x": 2}},
			"a": nil,
		},
	}
	got, err := JCSString(v)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	want := `{"outer":{"a":null,"b":[{"x":2,"y":1}]}}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestJCSNoHTMLEscape(t *testing.T) {
	got, err := JCSString(map[string]any{"html": "<b>&amp;</b>"})
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	want := `{"html":"<b>&amp;</b>"}`
	if got != want {
		t.Errorf("HTML characters must stay literal: got %s, want %s", got, want)
	}
}

func TestJCSNumberPassthrough(t *testing.T) {
	// Numbers decoded as json.Number keep their wire form through
	// re-serialization, so received receipts stay byte-stable.
	raw := []byte(`{"score":0.95,"count":42}`)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	got, err := JCSString(v)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	want := `{"count":42,"score":0.95}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestJCSStructTags(t *testing.T) {
	type sample struct {
		Name  string `json:"name"`
		Empty string `json:"empty,omitempty"`
		Kept  string `json:"kept"`
	}
	got, err := JCSString(sample{Name: "a", Kept: ""})
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	want := `{"kept":"","name":"a"}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestJCSScalars(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{false, "false"},
		{"plain", `"plain"`},
		{[]any{}, "[]"},
		{map[string]any{}, "{}"},
	}
	for _, tc := range cases {
		got, err := JCSString(tc.in)
		if err != nil {
			t.Fatalf("JCS(%v) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("JCS(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalHashOrderIndependent(t *testing.T) {
	a := map[string]any{"x": 1, "y": "two", "z": []any{3}}
	b := map[string]any{"z": []any{3}, "y": "two", "x": 1}

	ha, err := CanonicalHash(a)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	hb, err := CanonicalHash(b)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if ha != hb {
		t.Errorf("hash must not depend on key order: %s != %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Errorf("want 64 hex chars, got %d", len(ha))
	}
}

func TestHashBytesKnownVector(t *testing.T) {
	// SHA-256("abc") from FIPS 180-2.
	got := HashBytes([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
