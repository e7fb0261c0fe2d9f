package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID("sec")
		if !strings.HasPrefix(id, "sec_") {
			t.Fatalf("expected sec_ prefix, got %q", id)
		}
		if len(id) != len("sec_")+32 {
			t.Fatalf("unexpected id length %d for %q", len(id), id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if bare := NewID(""); strings.Contains(bare, "_") {
		t.Fatalf("expected bare id without separator, got %q", bare)
	}
}
