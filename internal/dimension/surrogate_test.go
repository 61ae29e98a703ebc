package dimension

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims whitespace", "  acme corp  ", "ACME CORP"},
		{"collapses inner whitespace", "acme    corp", "ACME CORP"},
		{"uppercases", "Acme Corp", "ACME CORP"},
		{"tabs and newlines", "acme\tcorp\n", "ACME CORP"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("Acme Corp", "US-WEST")
	k2 := Key("Acme Corp", "US-WEST")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestKeyNormalizesBeforeHashing(t *testing.T) {
	assert.Equal(t, Key("acme corp"), Key("  ACME    CORP  "))
}

func TestKeyOrderSensitive(t *testing.T) {
	assert.NotEqual(t, Key("a", "b"), Key("b", "a"))
}

func TestKeyFieldBoundaries(t *testing.T) {
	// Concatenation across field boundaries must not collide
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.NotEqual(t, Key("abc"), Key("ab", "c"))
}

func TestKeyNoCollisionsInCorpus(t *testing.T) {
	inputs := [][]string{
		{"C001"}, {"C002"}, {"C010"}, {"C100"},
		{"P001", "widget"}, {"P001", "gadget"}, {"P002", "widget"},
		{"Acme", "Retail"}, {"Acme Retail"}, {"ACME", "RETAIL"},
	}

	seen := make(map[string][]string)
	for _, in := range inputs {
		k := Key(in...)
		if prev, ok := seen[k]; ok {
			// {"Acme","Retail"} and {"ACME","RETAIL"} normalize identically
			assert.Equal(t, len(prev), len(in))
			continue
		}
		seen[k] = in
	}
	// 9 distinct normalized tuples out of 10 inputs
	assert.Len(t, seen, 9)
}
