package engine

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shelfdb/shelf/pkg/types"
)

// Record blobs are BSON-encoded then snappy-compressed. BSON keeps binary
// and numeric field values intact across the round trip, which the
// update-then-read-back contract depends on; JSON would silently turn
// blobs into base64 strings.

func encodeRecord(rec types.Record) ([]byte, error) {
	raw, err := bson.Marshal(bson.M(rec))
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "record encode failed", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeRecord(blob []byte) (types.Record, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "record decompress failed", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "record decode failed", err)
	}
	rec := make(types.Record, len(doc))
	for k, v := range doc {
		rec[k] = normalizeValue(v)
	}
	return rec, nil
}

// normalizeValue maps BSON driver types back onto the scalar kinds records
// are declared with. Integers widen to int64.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case primitive.Binary:
		return n.Data
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return v
	}
}

// Index key encoding: a canonical tagged byte string per field tuple.
// Numbers collapse to their float64 value so int64(1) and 1.0 produce the
// same entry; strings and blobs keep their type tag, so the string "1"
// seeds a different key than the number 1 (index keys are typed even
// though residual filtering is coercive).
const (
	keyTagString = 0x01
	keyTagNumber = 0x02
	keyTagBytes  = 0x03
)

// errUnindexable marks values the engine refuses as index keys. Booleans
// are rejected (binary cardinality makes indexing them pointless) and nil
// contributes no entry.
var errUnindexable = types.New(types.ErrCategoryEngine, types.CodeInvariant, "value is not an indexable key")

func encodeIndexKey(values []any) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range values {
		switch val := v.(type) {
		case string:
			buf.WriteByte(keyTagString)
			writeLenPrefixed(&buf, []byte(val))
		case []byte:
			buf.WriteByte(keyTagBytes)
			writeLenPrefixed(&buf, val)
		case nil, bool:
			return nil, errUnindexable
		default:
			f, ok := types.ToFloat(v)
			if !ok {
				return nil, errUnindexable
			}
			buf.WriteByte(keyTagNumber)
			var fb [8]byte
			binary.BigEndian.PutUint64(fb[:], math.Float64bits(f))
			buf.Write(fb[:])
		}
	}
	return buf.Bytes(), nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lb [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lb[:], uint64(len(b)))
	buf.Write(lb[:n])
	buf.Write(b)
}

// seekHash is the 64-bit hash stored alongside each index entry; equality
// seeks filter on the hash first, then verify the exact key bytes.
func seekHash(key []byte) int64 {
	return int64(murmur3.Sum64(key))
}
