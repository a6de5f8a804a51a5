// Package codec implements the canonical encoding substrate (spec C0)
// shared by every redquorum primitive: a deterministic JSON form used for
// lock tokens, NextId counters, memoized results, and Bloom filter
// elements, and its inverse.
package codec

import (
	"bytes"
	"encoding/json"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/robinbryce/redquorum/rediserr"
)

// Encode serializes v to its canonical textual form: JSON with sorted
// object keys and escaped non-ASCII, matching what Go's encoding/json
// already guarantees for map keys, with HTML-escaping disabled so the
// output is stable regardless of destination (Redis, not a browser), and
// every non-ASCII rune escaped to \uXXXX so the canonical form is
// byte-for-byte stable across encoders that don't share Go's UTF-8 string
// output (e.g. a reader on another language's json.dumps(ensure_ascii=True)).
func Encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", rediserr.EncodingError(err, "encode")
	}
	// json.Encoder.Encode appends a trailing newline; trim it so callers get
	// a value stable under repeated encode/decode round trips.
	return escapeNonASCII(string(bytes.TrimRight(buf.Bytes(), "\n"))), nil
}

// escapeNonASCII rewrites every non-ASCII rune in s as a \uXXXX escape (two
// surrogate escapes for runes outside the basic multilingual plane), the
// way encoding/json already does for HTML-unsafe characters.
func escapeNonASCII(s string) string {
	hasNonASCII := false
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			hasNonASCII = true
			break
		}
	}
	if !hasNonASCII {
		return s
	}

	var buf bytes.Buffer
	buf.Grow(len(s))
	for _, r := range s {
		if r < utf8.RuneSelf {
			buf.WriteByte(byte(r))
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError || r2 != utf8.RuneError {
			writeEscape(&buf, r1)
			writeEscape(&buf, r2)
		} else {
			writeEscape(&buf, r)
		}
	}
	return buf.String()
}

// writeEscape appends r as a \uXXXX escape.
func writeEscape(buf *bytes.Buffer, r rune) {
	const hex = "0123456789abcdef"
	buf.WriteString(`\u`)
	buf.WriteByte(hex[(r>>12)&0xf])
	buf.WriteByte(hex[(r>>8)&0xf])
	buf.WriteByte(hex[(r>>4)&0xf])
	buf.WriteByte(hex[r&0xf])
}

// Decode is the inverse of Encode.
func Decode(data string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return rediserr.EncodingError(err, "decode")
	}
	return nil
}
