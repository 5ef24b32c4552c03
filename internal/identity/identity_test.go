package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Joe's Cafe", "joes cafe"},
		{"whitespace collapse", "  1   Main   St  ", "1 main st"},
		{"punctuation stripped", "O'Brien & Sons, Inc.", "obrien sons inc"},
		{"unicode fold", "CAFÉ", "café"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	k1 := Key("Joe's Cafe", "1 Main St")
	k2 := Key("joe's cafe", "1 Main St")
	k3 := Key("JOES CAFE", "1  Main  St.")
	assert.Equal(t, k1, k2)
	assert.Equal(t, k1, k3)
	assert.Len(t, k1, 64)
}

func TestKey_DistinctBusinesses(t *testing.T) {
	assert.NotEqual(t, Key("Joe's Cafe", "1 Main St"), Key("Joe's Cafe", "2 Main St"))
	assert.NotEqual(t, Key("Joe's Cafe", "1 Main St"), Key("Moe's Cafe", "1 Main St"))
}

func TestKey_SeparatorPreventsBoundaryCollision(t *testing.T) {
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}
