// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for trust receipts. The canonical byte form is the single
// input to content hashing, chain hashing, and Ed25519 signing, so every
// component that hashes or signs a receipt MUST go through this package.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Rules:
//  1. Object keys are sorted lexicographically by UTF-8 bytes.
//  2. HTML escaping is DISABLED (unlike standard json.Marshal).
//  3. Numbers already carried as json.Number are emitted verbatim, which
//     keeps wire-received receipts byte-stable through re-serialization.
//  4. Absent struct fields (omitempty) are dropped; explicit nulls survive.
//
// Structs first pass through standard json.Marshal so their tags are
// respected, then are decoded with UseNumber and re-emitted canonically.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("jcs: intermediate decode failed: %w", err)
	}

	var buf bytes.Buffer
	if err := appendCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JCSString returns the canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON form of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes as a lowercase hex string.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// appendCanonical streams the canonical form of one decoded JSON value
// into buf, recursing through containers.
func appendCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case json.Number:
		// Verbatim: re-formatting would break byte stability of
		// wire-received receipts.
		buf.WriteString(t.String())
	case string:
		return appendJSONScalar(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendJSONScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := appendCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		// Unreached for UseNumber-decoded input; kept for direct callers.
		return appendJSONScalar(buf, v)
	}
	return nil
}

// appendJSONScalar writes v with HTML escaping off, so strings get RFC
// 8785's minimal escaping (<, >, & stay literal).
func appendJSONScalar(buf *bytes.Buffer, v interface{}) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encoder terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
