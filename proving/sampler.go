package proving

import (
	"math/rand"
	"slices"

	"github.com/spacemeshos/bitecoin/shared"
)

// Sampler draws sets of distinct indices. It is deterministic for a given seed,
// so a search can be replayed exactly. A Sampler is not safe for concurrent
// use; every search task owns one.
type Sampler struct {
	rng *rand.Rand

	maxIndices   uint32
	legacyDomain uint32
	poolSize     uint32

	scratch []uint32
}

// NewSampler returns a sampler for round. The legacy domain is the first
// legacyDomainFactor*MaxIndices indices of the round's domain; the pool holds
// poolSize entries.
func NewSampler(seed int64, round *shared.RoundContext, legacyDomainFactor uint32, poolSize int) *Sampler {
	maxIndices := round.MaxIndices()
	legacyDomain := uint64(legacyDomainFactor) * uint64(maxIndices)
	if legacyDomain > uint64(round.DomainSize()) {
		legacyDomain = uint64(round.DomainSize())
	}
	if legacyDomain < uint64(maxIndices) {
		legacyDomain = uint64(maxIndices)
	}

	return &Sampler{
		rng:          rand.New(rand.NewSource(seed)),
		maxIndices:   maxIndices,
		legacyDomain: uint32(legacyDomain),
		poolSize:     uint32(poolSize),
		scratch:      make([]uint32, 0, maxIndices),
	}
}

// LegacyDomain returns the size of the index range Legacy draws from.
func (s *Sampler) LegacyDomain() uint32 {
	return s.legacyDomain
}

// Legacy draws exactly MaxIndices distinct indices from the legacy domain. The
// returned slice is sorted and only valid until the next draw.
func (s *Sampler) Legacy() []uint32 {
	return s.choose(s.legacyDomain, s.maxIndices)
}

// Pool draws between 1 and MaxIndices distinct pool positions, each size being
// equally likely. The returned slice is sorted and only valid until the next
// draw. It returns nil when the pool is empty.
func (s *Sampler) Pool() []uint32 {
	limit := min(s.maxIndices, s.poolSize)
	if limit == 0 {
		return nil
	}
	k := uint32(s.rng.Int63n(int64(limit))) + 1
	return s.choose(s.poolSize, k)
}

// choose draws k distinct values from [0, n) with Floyd's algorithm.
func (s *Sampler) choose(n, k uint32) []uint32 {
	out := s.scratch[:0]
	for j := n - k; j < n; j++ {
		t := uint32(s.rng.Int63n(int64(j) + 1))
		if slices.Contains(out, t) {
			t = j
		}
		out = append(out, t)
	}
	slices.Sort(out)
	s.scratch = out
	return out
}
