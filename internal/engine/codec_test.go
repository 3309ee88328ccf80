package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/pkg/types"
)

func TestRecordCodec_RoundTrip(t *testing.T) {
	rec := types.Record{
		"id":     "abc123",
		"name":   "widget",
		"count":  int64(42),
		"weight": 2.5,
		"active": true,
		"blob":   []byte{0x01, 0x02, 0xFF},
		"note":   nil,
	}

	blob, err := encodeRecord(rec)
	require.NoError(t, err)

	got, err := decodeRecord(blob)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRecordCodec_WidensSmallInts(t *testing.T) {
	blob, err := encodeRecord(types.Record{"id": "x", "n": 7})
	require.NoError(t, err)

	got, err := decodeRecord(blob)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got["n"])
}

func TestEncodeIndexKey_Deterministic(t *testing.T) {
	a, err := encodeIndexKey([]any{"A", "u1"})
	require.NoError(t, err)
	b, err := encodeIndexKey([]any{"A", "u1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, seekHash(a), seekHash(b))

	c, err := encodeIndexKey([]any{"A", "u2"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEncodeIndexKey_NumbersCollapse(t *testing.T) {
	a, err := encodeIndexKey([]any{int64(1)})
	require.NoError(t, err)
	b, err := encodeIndexKey([]any{1.0})
	require.NoError(t, err)
	assert.Equal(t, a, b, "int and float of equal value must produce the same index key")

	s, err := encodeIndexKey([]any{"1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, s, "index keys are typed: the string \"1\" is not the number 1")
}

func TestEncodeIndexKey_TupleBoundaries(t *testing.T) {
	// ("ab", "c") and ("a", "bc") must not collide.
	a, err := encodeIndexKey([]any{"ab", "c"})
	require.NoError(t, err)
	b, err := encodeIndexKey([]any{"a", "bc"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncodeIndexKey_Unindexable(t *testing.T) {
	for _, v := range []any{nil, true, false} {
		_, err := encodeIndexKey([]any{v})
		assert.Error(t, err, "value %v should not be indexable", v)
	}
}
