package codec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Decode uses json.Decoder.UseNumber, so round-tripped numbers come back
	// as json.Number rather than float64; these fixtures stick to strings
	// and nested maps so the decoded value can be compared directly against
	// the original without a type-specific conversion step.
	tables := []struct {
		subtest string
		value   map[string]any
	}{
		{
			subtest: "simple map",
			value:   map[string]any{"b": "second", "a": "first"},
		},
		{
			subtest: "nested",
			value:   map[string]any{"outer": map[string]any{"z": "1", "a": "x"}},
		},
		{
			subtest: "non-ascii string",
			value:   map[string]any{"name": "café \U0001f600"},
		},
	}

	for _, table := range tables {
		t.Run(table.subtest, func(t *testing.T) {
			encoded, err := Encode(table.value)
			assert.NoError(t, err)

			var decoded map[string]any
			err = Decode(encoded, &decoded)
			assert.NoError(t, err)
			assert.Equal(t, table.value, decoded)
		})
	}
}

func TestEncodeEscapesNonASCII(t *testing.T) {
	input := "café"
	encoded, err := Encode(input)
	assert.NoError(t, err)

	for _, r := range input {
		if r >= 0x80 {
			assert.NotContains(t, encoded, string(r), "non-ASCII rune %q must not appear literally in the canonical form", r)
			assert.Contains(t, encoded, fmt.Sprintf("\\u%04x", r), "non-ASCII rune %q must be \\u-escaped", r)
		}
	}
}

func TestEncodeDeterministicKeyOrder(t *testing.T) {
	v := map[string]any{"z": 1, "a": 2, "m": 3}
	first, err := Encode(v)
	assert.NoError(t, err)
	second, err := Encode(v)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, `{"a":2,"m":3,"z":1}`, first)
}

func TestEncodeRejectsUnsupportedValue(t *testing.T) {
	_, err := Encode(make(chan int))
	assert.Error(t, err)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	var v map[string]any
	err := Decode("{not json", &v)
	assert.Error(t, err)
}
