package canonicalize

import (
	"bytes"
	"encoding/json"
	"testing"
)

func FuzzJCS(f *testing.F) {
	f.Add([]byte(`{"a":1}`))
	f.Add([]byte(`{"b":{"c":[1,2,3]},"a":"x"}`))
	f.Add([]byte(`[null,true,false,"s",0.5]`))
	f.Add([]byte(`{"<html>":"&escape"}`))
	f.Add([]byte(`{"":""}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		if !json.Valid(data) {
			return
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return
		}

		first, err := JCS(v)
		if err != nil {
			t.Fatalf("JCS failed on valid JSON %q: %v", data, err)
		}
		if !json.Valid(first) {
			t.Fatalf("JCS produced invalid JSON %q from %q", first, data)
		}

		dec = json.NewDecoder(bytes.NewReader(first))
		dec.UseNumber()
		var round any
		if err := dec.Decode(&round); err != nil {
			t.Fatalf("canonical form does not decode: %v", err)
		}
		second, err := JCS(round)
		if err != nil {
			t.Fatalf("second pass failed: %v", err)
		}
		if !bytes.Equal(first, second) {
			t.Fatalf("not idempotent:\n first  %s\n second %s", first, second)
		}
	})
}
