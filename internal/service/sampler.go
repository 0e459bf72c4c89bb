package service

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Sampler draws uniform samples without replacement. Safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler seeds a PCG source with seed. Seed 0 seeds from the clock.
func NewSampler(seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // G115: any bits will do
	}

	return NewSamplerFromRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewSamplerFromRand wraps an existing source.
func NewSamplerFromRand(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}

// Pick returns min(k, n) distinct indices from [0, n) in draw order.
func (s *Sampler) Pick(n, k int) []int {
	k = max(0, min(k, n))
	if k == 0 {
		return []int{}
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range k {
		j := i + s.rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}

	return perm[:k]
}
