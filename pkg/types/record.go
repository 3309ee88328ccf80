package types

// DefaultDeletedField is the record field that carries the soft-delete
// timestamp unless a store configures its own.
const DefaultDeletedField = "deletedTimestamp"

// Record is a flat mapping from field name to scalar value. Supported value
// kinds are string, numeric (int64/float64), bool, []byte, and nil. Records
// are never nested: no field is itself a record or collection.
type Record map[string]any

// Key returns the record's value under the given key path as a string.
// The second return is false when the field is absent, empty, or not a
// string; record keys are always strings.
func (r Record) Key(keyPath string) (string, bool) {
	v, ok := r[keyPath]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Clone returns a shallow copy of the record. Field values are scalars, so
// a shallow copy is sufficient everywhere except []byte fields, which are
// copied explicitly.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			cp := make([]byte, len(b))
			copy(cp, b)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}
