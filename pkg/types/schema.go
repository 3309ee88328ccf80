package types

import "strings"

// CompositeJoin separates field names in a composite index name. A query
// over fields (a, b) resolves the composite index named "a+b".
const CompositeJoin = "+"

// IndexDef defines a secondary index on a collection.
type IndexDef struct {
	// Name is the index name. Composite indexes are named by their fields
	// joined with CompositeJoin in declared order.
	Name string `json:"name" yaml:"name"`

	// Fields lists the record fields covered by the index, in key order.
	Fields []string `json:"fields" yaml:"fields"`

	// Unique indicates whether the index enforces uniqueness.
	Unique bool `json:"unique" yaml:"unique"`

	// MultiEntry marks an index declared with the multi-valued entry
	// marker. Records are flat scalars, so the binding treats these like
	// simple indexes; the flag is preserved for schema fidelity.
	MultiEntry bool `json:"multi_entry" yaml:"multi_entry"`
}

// Composite reports whether the index covers more than one field.
func (d IndexDef) Composite() bool {
	return len(d.Fields) > 1
}

// StoreDef defines one collection: its name, primary key path, and
// secondary indexes. Definitions are created once at database
// creation/upgrade time and immutable afterward.
type StoreDef struct {
	// Name is the collection name.
	Name string `json:"name" yaml:"name"`

	// KeyPath is the record field holding the primary key, conventionally "id".
	KeyPath string `json:"key_path" yaml:"key_path"`

	// Indexes are the secondary indexes, in declaration order.
	Indexes []IndexDef `json:"indexes" yaml:"indexes"`
}

// Index returns the index with the given name.
func (d StoreDef) Index(name string) (IndexDef, bool) {
	for _, ix := range d.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexDef{}, false
}

// HasIndex reports whether an index with the given name exists.
func (d StoreDef) HasIndex(name string) bool {
	_, ok := d.Index(name)
	return ok
}

// CompositeName builds the composite index name for the given fields.
func CompositeName(fields []string) string {
	return strings.Join(fields, CompositeJoin)
}
