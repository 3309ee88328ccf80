package types

import (
	"encoding/base64"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNewRecordID_Format(t *testing.T) {
	id, err := NewRecordID()
	if err != nil {
		t.Fatalf("NewRecordID failed: %v", err)
	}

	// 20 bytes of randomness encode to 27 unpadded base64url characters.
	if len(id) != 27 {
		t.Errorf("got length %d, want 27", len(id))
	}

	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		t.Fatalf("id is not valid unpadded base64url: %v", err)
	}
	if len(raw) != recordIDBytes {
		t.Errorf("decoded to %d bytes, want %d", len(raw), recordIDBytes)
	}
}

func TestNewRecordID_URLSafe(t *testing.T) {
	for i := 0; i < 256; i++ {
		id, err := NewRecordID()
		if err != nil {
			t.Fatalf("NewRecordID failed: %v", err)
		}
		for _, c := range id {
			switch {
			case c >= 'A' && c <= 'Z':
			case c >= 'a' && c <= 'z':
			case c >= '0' && c <= '9':
			case c == '-' || c == '_':
			default:
				t.Fatalf("id %q contains non-URL-safe character %q", id, c)
			}
		}
	}
}

// TestProperty_RecordIDUniqueness validates that independently generated ids
// do not collide across any reasonably sized batch.
func TestProperty_RecordIDUniqueness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("batches of generated ids are pairwise distinct", prop.ForAll(
		func(count int) bool {
			seen := make(map[string]struct{}, count)
			for i := 0; i < count; i++ {
				id, err := NewRecordID()
				if err != nil {
					return false
				}
				if _, dup := seen[id]; dup {
					return false
				}
				seen[id] = struct{}{}
			}
			return true
		},
		gen.IntRange(2, 500),
	))

	properties.TestingRun(t)
}
