package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/pkg/types"
)

func TestCompile_SimpleAndUnique(t *testing.T) {
	defs, err := Compile(map[string]string{
		"users": "id, name, !email",
	}, "")
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, "users", def.Name)
	assert.Equal(t, "id", def.KeyPath)
	require.Len(t, def.Indexes, 2)

	assert.Equal(t, types.IndexDef{Name: "name", Fields: []string{"name"}}, def.Indexes[0])
	assert.Equal(t, types.IndexDef{Name: "email", Fields: []string{"email"}, Unique: true}, def.Indexes[1])
}

func TestCompile_Composite(t *testing.T) {
	defs, err := Compile(map[string]string{
		"tasks": "id, userId, [!code+userId]",
	}, "")
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	require.Len(t, def.Indexes, 3)

	// Declared order: explicit userId, then composite, then implicit code.
	assert.Equal(t, "userId", def.Indexes[0].Name)
	assert.Equal(t, types.IndexDef{Name: "code+userId", Fields: []string{"code", "userId"}}, def.Indexes[1])
	assert.Equal(t, types.IndexDef{Name: "code", Fields: []string{"code"}, Unique: true}, def.Indexes[2])

	assert.True(t, def.HasIndex("code+userId"))
	assert.False(t, def.Indexes[1].Unique, "composite index itself is not unique")
}

func TestCompile_MultiEntryMarker(t *testing.T) {
	defs, err := Compile(map[string]string{"posts": "id, *tags"}, "")
	require.NoError(t, err)
	require.Len(t, defs[0].Indexes, 1)
	assert.True(t, defs[0].Indexes[0].MultiEntry)
	assert.Equal(t, "tags", defs[0].Indexes[0].Name)
}

func TestCompile_SynthesizesKeyValueCollection(t *testing.T) {
	defs, err := Compile(map[string]string{"users": "id"}, "keyValue")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	// Sorted declared collections first, synthesized kv collection last.
	assert.Equal(t, "users", defs[0].Name)
	assert.Equal(t, "keyValue", defs[1].Name)
	assert.Equal(t, "key", defs[1].KeyPath)
	assert.Empty(t, defs[1].Indexes)
}

func TestCompile_KeyValueCollectionAlreadyDeclared(t *testing.T) {
	defs, err := Compile(map[string]string{"keyValue": "key, bucket"}, "keyValue")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "key", defs[0].KeyPath)
	require.Len(t, defs[0].Indexes, 1)
}

func TestCompile_DeterministicOrder(t *testing.T) {
	spec := map[string]string{"zebra": "id", "apple": "id", "mango": "id"}
	defs, err := Compile(spec, "")
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "apple", defs[0].Name)
	assert.Equal(t, "mango", defs[1].Name)
	assert.Equal(t, "zebra", defs[2].Name)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec map[string]string
	}{
		{"empty token", map[string]string{"a": "id,,name"}},
		{"composite primary key", map[string]string{"a": "[x+y], name"}},
		{"unterminated composite", map[string]string{"a": "id, [x+y"}},
		{"single-field composite", map[string]string{"a": "id, [x]"}},
		{"invalid field name", map[string]string{"a": `id, na"me`}},
		{"invalid collection name", map[string]string{`a"b`: "id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.spec, "")
			require.Error(t, err)
			assert.Equal(t, types.CodeInvalidSchema, types.GetCode(err))
		})
	}
}
