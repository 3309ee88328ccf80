package types

import (
	"bytes"
	"reflect"
	"strconv"
)

// Matcher is a tagged value matcher for one predicate field: either a
// single scalar or a set of candidate scalars (match-any).
type Matcher struct {
	scalar any
	values []any
	anyOf  bool
}

// Eq matches records whose field loosely equals v.
func Eq(v any) Matcher {
	return Matcher{scalar: v}
}

// AnyOf matches records whose field loosely equals at least one of vs.
func AnyOf(vs ...any) Matcher {
	return Matcher{values: vs, anyOf: true}
}

// IsAnyOf reports whether the matcher carries a candidate set.
func (m Matcher) IsAnyOf() bool { return m.anyOf }

// Scalar returns the single candidate value. Only meaningful when
// IsAnyOf is false.
func (m Matcher) Scalar() any { return m.scalar }

// Values returns the candidate set. Only meaningful when IsAnyOf is true.
func (m Matcher) Values() []any { return m.values }

// Matches reports whether a record field value satisfies the matcher.
func (m Matcher) Matches(v any) bool {
	if m.anyOf {
		for _, cand := range m.values {
			if LooseEq(v, cand) {
				return true
			}
		}
		return false
	}
	return LooseEq(v, m.scalar)
}

// Predicate is an ordered list of (field, Matcher) pairs. Field order is
// explicit and significant: the first field seeds the index scan, and a
// composite index is resolved by the fields joined in declared order.
type Predicate struct {
	fields   []string
	matchers []Matcher
}

// NewPredicate returns an empty predicate.
func NewPredicate() *Predicate {
	return &Predicate{}
}

// Where appends a (field, matcher) pair and returns the predicate for
// chaining. Repeating a field appends a second pair rather than replacing
// the first.
func (p *Predicate) Where(field string, m Matcher) *Predicate {
	p.fields = append(p.fields, field)
	p.matchers = append(p.matchers, m)
	return p
}

// Len returns the number of predicate fields.
func (p *Predicate) Len() int {
	if p == nil {
		return 0
	}
	return len(p.fields)
}

// Field returns the i-th field name.
func (p *Predicate) Field(i int) string { return p.fields[i] }

// Matcher returns the i-th matcher.
func (p *Predicate) Matcher(i int) Matcher { return p.matchers[i] }

// Fields returns the field names in declared order.
func (p *Predicate) Fields() []string {
	out := make([]string, len(p.fields))
	copy(out, p.fields)
	return out
}

// AllScalar reports whether every matcher is a single scalar. Composite
// index seeds cannot carry per-field candidate sets.
func (p *Predicate) AllScalar() bool {
	for _, m := range p.matchers {
		if m.IsAnyOf() {
			return false
		}
	}
	return true
}

// LooseEq compares two scalar values with intentional cross-type numeric
// coercion: ints, floats, and numeric strings compare by numeric value, so
// "5" equals 5 and int64(1) equals 1.0. Everything else compares strictly.
// This mirrors the coercive equality of the environment this layer is a
// compatibility shim for; callers wanting strict typing should normalize
// their values before querying.
func LooseEq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aok := ToFloat(a)
	fb, bok := ToFloat(b)
	if aok && bok {
		return fa == fb
	}
	if ab, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Equal(ab, bb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat coerces a scalar to float64. Numeric strings coerce; booleans,
// blobs, and non-numeric strings do not.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
