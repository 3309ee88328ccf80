package query

import (
	"context"
	"math"
	"sort"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/pkg/types"
)

// Run executes an equality predicate against one collection inside an
// already-open transaction and returns the matching records, optionally
// stably sorted ascending by a numeric sort field.
//
// A nil or empty predicate scans the whole collection. Scans always run
// the cursor to exhaustion; cursors are the engine's only iteration
// primitive and there is no early termination.
func Run(ctx context.Context, tx engine.Txn, def types.StoreDef, p *types.Predicate, sortField string) ([]types.Record, error) {
	if p.Len() == 0 {
		out, err := scan(ctx, tx, def, Resolution{Kind: ResolvedSingle}, nil)
		if err != nil {
			return nil, err
		}
		SortRecords(out, sortField)
		return out, nil
	}

	res := Resolve(def, p)
	if res.Kind == ResolvedNone {
		return nil, types.NewIndexNotFound(def.Name, p.Field(0))
	}

	out, err := scan(ctx, tx, def, res, p)
	if err != nil {
		return nil, err
	}
	SortRecords(out, sortField)
	return out, nil
}

func scan(ctx context.Context, tx engine.Txn, def types.StoreDef, res Resolution, p *types.Predicate) ([]types.Record, error) {
	cur, err := tx.OpenCursor(ctx, def.Name, res.Index, res.Seed)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	out := []types.Record{}
	for {
		rec, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if matches(rec, p, res.SkipFirst) {
			out = append(out, rec)
		}
	}
}

// matches applies residual filtering: every predicate field not already
// satisfied by the seed must loosely equal the record's value. The first
// failing field excludes the record.
func matches(rec types.Record, p *types.Predicate, skipFirst bool) bool {
	for i := 0; i < p.Len(); i++ {
		if i == 0 && skipFirst {
			continue
		}
		if !p.Matcher(i).Matches(rec[p.Field(i)]) {
			return false
		}
	}
	return true
}

// SortRecords stably sorts records ascending by numeric coercion of the
// given field. Sort keys are assumed numeric or numeric-coercible;
// non-numeric values compare as NaN, which leaves their relative order
// unspecified rather than defined behavior.
func SortRecords(recs []types.Record, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return numericKey(recs[i][field]) < numericKey(recs[j][field])
	})
}

func numericKey(v any) float64 {
	f, ok := types.ToFloat(v)
	if !ok {
		return math.NaN()
	}
	return f
}
