package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint returns a deterministic cache key for an operation and its
// semantic parameters. Map keys are sorted recursively before hashing, so
// two logically equal requests hash identically regardless of the order
// fields were inserted. Volatile fields (timestamps, trace IDs) must not be
// included by the caller.
func Fingerprint(op string, params map[string]any) string {
	var b strings.Builder
	writeCanonical(&b, params)

	h := sha256.New()
	h.Write([]byte(b.String()))
	return op + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// writeCanonical renders v as canonical JSON: object keys sorted, arrays in
// order, scalars via encoding/json.
func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')

	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')

	case []string:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')

	default:
		enc, err := json.Marshal(t)
		if err != nil {
			// Unencodable values are a programming error; render the type
			// name so the key is at least stable.
			enc, _ = json.Marshal(fmt.Sprintf("%T", t))
		}
		b.Write(enc)
	}
}
