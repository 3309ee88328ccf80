// Package schema compiles table-name → index-list specifications into the
// concrete store definitions consumed when the underlying engine is created
// or upgraded.
//
// Each collection maps to a comma-separated list of index tokens:
//
//	"id, userId, [!code+userId]"
//
// The first token is the primary key path. A plain field name declares a
// simple non-unique index, a "!" prefix declares a unique index, a "*"
// prefix declares a multi-valued entry index, and a bracket-wrapped
// "+"-joined field list declares a composite index over those fields. Each
// composite constituent additionally gets its own implicit single-field
// index, honoring its own marker prefix.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shelfdb/shelf/pkg/types"
)

const (
	uniqueMarker     = "!"
	multiEntryMarker = "*"
)

// Field names and index names end up inside quoted engine identifiers, so
// the compiler rejects anything outside a conservative character set.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Compile parses a schema specification into store definitions, one per
// collection, in sorted collection-name order. If kvCollection is not
// present in the spec, one additional collection is synthesized with the
// single primary key field "key" and no secondary indexes; it is the
// substrate for both key/value storage and key-only storage.
func Compile(spec map[string]string, kvCollection string) ([]types.StoreDef, error) {
	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]types.StoreDef, 0, len(names)+1)
	for _, name := range names {
		def, err := compileStore(name, spec[name])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	if kvCollection != "" {
		if _, declared := spec[kvCollection]; !declared {
			defs = append(defs, types.StoreDef{Name: kvCollection, KeyPath: "key"})
		}
	}
	return defs, nil
}

func compileStore(name, tokens string) (types.StoreDef, error) {
	if !fieldNamePattern.MatchString(name) {
		return types.StoreDef{}, types.NewInvalidSchema(fmt.Sprintf("invalid collection name %q", name))
	}

	parts := strings.Split(tokens, ",")
	def := types.StoreDef{Name: name}
	seen := make(map[string]bool)

	for i, raw := range parts {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			return types.StoreDef{}, types.NewInvalidSchema(
				fmt.Sprintf("collection %q: empty index token at position %d", name, i))
		}

		if i == 0 {
			// First token is the primary key path. Markers are meaningless
			// on it (the primary key is unique by construction) and a
			// composite primary key is not supported.
			if strings.HasPrefix(tok, "[") {
				return types.StoreDef{}, types.NewInvalidSchema(
					fmt.Sprintf("collection %q: composite primary key %q not supported", name, tok))
			}
			field, _, _, err := parseField(name, tok)
			if err != nil {
				return types.StoreDef{}, err
			}
			def.KeyPath = field
			continue
		}

		indexes, err := parseToken(name, tok)
		if err != nil {
			return types.StoreDef{}, err
		}
		for _, ix := range indexes {
			if ix.Name == def.KeyPath {
				continue // the key path already has the primary index
			}
			// A field can be declared both explicitly and implicitly as a
			// composite constituent; the first declaration wins.
			if seen[ix.Name] {
				continue
			}
			seen[ix.Name] = true
			def.Indexes = append(def.Indexes, ix)
		}
	}
	return def, nil
}

// parseToken expands one index token into index definitions. Composite
// tokens yield the composite index followed by an implicit single-field
// index per constituent.
func parseToken(collection, tok string) ([]types.IndexDef, error) {
	if !strings.HasPrefix(tok, "[") {
		field, unique, multi, err := parseField(collection, tok)
		if err != nil {
			return nil, err
		}
		return []types.IndexDef{{Name: field, Fields: []string{field}, Unique: unique, MultiEntry: multi}}, nil
	}

	if !strings.HasSuffix(tok, "]") {
		return nil, types.NewInvalidSchema(
			fmt.Sprintf("collection %q: unterminated composite token %q", collection, tok))
	}
	inner := tok[1 : len(tok)-1]
	parts := strings.Split(inner, types.CompositeJoin)
	if len(parts) < 2 {
		return nil, types.NewInvalidSchema(
			fmt.Sprintf("collection %q: composite token %q needs at least two fields", collection, tok))
	}

	fields := make([]string, 0, len(parts))
	out := make([]types.IndexDef, 0, len(parts)+1)
	for _, part := range parts {
		field, unique, multi, err := parseField(collection, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
		out = append(out, types.IndexDef{Name: field, Fields: []string{field}, Unique: unique, MultiEntry: multi})
	}

	composite := types.IndexDef{Name: types.CompositeName(fields), Fields: fields}
	return append([]types.IndexDef{composite}, out...), nil
}

func parseField(collection, tok string) (field string, unique, multiEntry bool, err error) {
	field = tok
	if strings.HasPrefix(field, uniqueMarker) {
		unique = true
		field = strings.TrimPrefix(field, uniqueMarker)
	}
	if strings.HasPrefix(field, multiEntryMarker) {
		multiEntry = true
		field = strings.TrimPrefix(field, multiEntryMarker)
	}
	if !fieldNamePattern.MatchString(field) {
		return "", false, false, types.NewInvalidSchema(
			fmt.Sprintf("collection %q: invalid field name %q", collection, tok))
	}
	return field, unique, multiEntry, nil
}
