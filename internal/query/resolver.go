// Package query turns equality predicates into index scans with residual
// in-memory filtering.
//
// The underlying engine supports neither multi-field ad hoc queries nor
// joins; the only iteration primitive is a cursor over one index,
// optionally seeded with an exact-match key. Everything beyond that seed
// is checked record by record after the scan.
package query

import (
	"github.com/shelfdb/shelf/pkg/types"
)

// ResolutionKind tags the outcome of index resolution.
type ResolutionKind int

const (
	// ResolvedComposite seeds a composite index with the full value tuple.
	ResolvedComposite ResolutionKind = iota

	// ResolvedSingle scans the first field's index (or the primary key).
	ResolvedSingle

	// ResolvedNone means no index covers the first predicate field.
	ResolvedNone
)

// Resolution describes the chosen scan: which index, the seed (nil for an
// unseeded scan), and whether the first predicate field is already exactly
// matched by the seed and can skip residual filtering.
type Resolution struct {
	Kind      ResolutionKind
	Index     string // "" means the primary key index
	Seed      []any
	SkipFirst bool
}

// Resolve picks the index for a predicate against one collection.
//
// A multi-field predicate first tries the composite index named by the
// fields joined in declared order. That attempt falls through to
// single-field resolution — deliberately, as a second explicit step, not
// an error path — when no such index exists or when any field carries a
// candidate set (a composite seed holds exactly one value per field).
//
// Single-field resolution uses the field's own index, or the primary key
// index when the field is the store's key path. A scalar value seeds the
// cursor; a candidate set cannot, so the whole index is scanned and every
// record residual-filtered.
func Resolve(def types.StoreDef, p *types.Predicate) Resolution {
	if p.Len() > 1 && p.AllScalar() {
		name := types.CompositeName(p.Fields())
		if def.HasIndex(name) {
			seed := make([]any, p.Len())
			for i := 0; i < p.Len(); i++ {
				seed[i] = p.Matcher(i).Scalar()
			}
			return Resolution{Kind: ResolvedComposite, Index: name, Seed: seed, SkipFirst: true}
		}
	}

	field := p.Field(0)
	index := field
	if field == def.KeyPath {
		index = ""
	} else if !def.HasIndex(field) {
		return Resolution{Kind: ResolvedNone}
	}

	m := p.Matcher(0)
	if m.IsAnyOf() {
		return Resolution{Kind: ResolvedSingle, Index: index}
	}
	return Resolution{Kind: ResolvedSingle, Index: index, Seed: []any{m.Scalar()}, SkipFirst: true}
}
