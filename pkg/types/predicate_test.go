package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLooseEq(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal strings", "abc", "abc", true},
		{"different strings", "abc", "abd", false},
		{"equal ints", int64(5), int64(5), true},
		{"int vs float", int64(5), 5.0, true},
		{"numeric string vs number", "5", int64(5), true},
		{"numeric string vs float", "2.5", 2.5, true},
		{"non-numeric string vs number", "five", int64(5), false},
		{"bool equal", true, true, true},
		{"bool unequal", true, false, false},
		{"bool vs number not coerced", true, int64(1), false},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"blobs equal", []byte{1, 2}, []byte{1, 2}, true},
		{"blobs unequal", []byte{1, 2}, []byte{1, 3}, false},
		{"blob vs string", []byte("a"), "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooseEq(tt.a, tt.b); got != tt.want {
				t.Errorf("LooseEq(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatcher_AnyOf(t *testing.T) {
	m := AnyOf("a", int64(2), "3")

	if !m.Matches("a") {
		t.Error("should match first candidate")
	}
	if !m.Matches(2.0) {
		t.Error("should match numeric candidate with coercion")
	}
	if !m.Matches(int64(3)) {
		t.Error("should match numeric-string candidate with coercion")
	}
	if m.Matches("b") {
		t.Error("should not match absent candidate")
	}
}

func TestPredicate_Order(t *testing.T) {
	p := NewPredicate().
		Where("code", Eq("A")).
		Where("userId", Eq("u1"))

	if p.Len() != 2 {
		t.Fatalf("got len %d, want 2", p.Len())
	}
	if p.Field(0) != "code" || p.Field(1) != "userId" {
		t.Errorf("field order not preserved: %v", p.Fields())
	}
	if CompositeName(p.Fields()) != "code+userId" {
		t.Errorf("composite name %q, want code+userId", CompositeName(p.Fields()))
	}
	if !p.AllScalar() {
		t.Error("scalar-only predicate reported as non-scalar")
	}
	if NewPredicate().Where("f", AnyOf(1, 2)).AllScalar() {
		t.Error("AnyOf predicate reported as all-scalar")
	}
}

// TestProperty_AnyOfIsUnionOfScalars validates that a candidate-set matcher
// accepts exactly the union of what the individual scalar matchers accept.
func TestProperty_AnyOfIsUnionOfScalars(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("AnyOf(vs).Matches(x) == any(Eq(v).Matches(x))", prop.ForAll(
		func(vs []int64, x int64) bool {
			cands := make([]any, len(vs))
			union := false
			for i, v := range vs {
				cands[i] = v
				if Eq(v).Matches(x) {
					union = true
				}
			}
			return AnyOf(cands...).Matches(x) == union
		},
		gen.SliceOf(gen.Int64Range(-10, 10)),
		gen.Int64Range(-10, 10),
	))

	properties.TestingRun(t)
}
