package shared

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spacemeshos/bitecoin/wideint"
)

// ProofEntry is the proof of a single index for the current round.
type ProofEntry struct {
	Index uint32
	Proof wideint.Int
}

// Candidate is a set of distinct indices, kept strictly increasing, and their
// combined value.
type Candidate struct {
	Indices []uint32
	Value   wideint.Int
}

// Len returns the number of indices in c.
func (c *Candidate) Len() int {
	return len(c.Indices)
}

// Better reports whether c should replace other as the best candidate. Ties keep
// the candidate that was seen first.
func (c *Candidate) Better(other *Candidate) bool {
	if other == nil {
		return true
	}
	return wideint.Less(c.Value, other.Value)
}

func (c *Candidate) String() string {
	parts := make([]string, len(c.Indices))
	for i, idx := range c.Indices {
		parts[i] = fmt.Sprint(idx)
	}
	return fmt.Sprintf("[%v] %v", strings.Join(parts, ","), c.Value)
}

// SortedIndices returns a sorted copy of indices, or ErrDuplicateIndex when an
// index appears twice.
func SortedIndices(indices []uint32) ([]uint32, error) {
	if len(indices) == 0 {
		return nil, ErrEmptyCandidate
	}
	sorted := append([]uint32(nil), indices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateIndex, sorted[i])
		}
	}
	return sorted, nil
}
