package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampler_Pick(t *testing.T) {
	tests := []struct {
		name string
		n, k int
		want int
	}{
		{"k below pool", 10, 3, 3},
		{"k above pool", 3, 5, 3},
		{"empty pool", 0, 5, 0},
		{"zero k", 4, 0, 0},
		{"negative k", 4, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSampler(1).Pick(tt.n, tt.k)
			assert.Len(t, got, tt.want)

			seen := make(map[int]bool)
			for _, i := range got {
				assert.False(t, seen[i], "index %d drawn twice", i)
				assert.GreaterOrEqual(t, i, 0)
				assert.Less(t, i, tt.n)

				seen[i] = true
			}
		})
	}
}

func TestSampler_SeededIsReproducible(t *testing.T) {
	a := NewSampler(42)
	b := NewSampler(42)

	for range 5 {
		assert.Equal(t, a.Pick(20, 5), b.Pick(20, 5))
	}
}
