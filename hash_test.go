package pgwire

import "testing"

func TestXxhashStringStableAndDistinct(t *testing.T) {
	a := xxhashString("SELECT 1")
	b := xxhashString("SELECT 1")
	c := xxhashString("SELECT 2")

	if a != b {
		t.Errorf("expected identical SQL text to hash the same, got %d and %d", a, b)
	}
	if a == c {
		t.Errorf("expected distinct SQL text to hash differently")
	}
}
