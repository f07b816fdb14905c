package proving

import (
	"sync/atomic"

	"github.com/spacemeshos/bitecoin/shared"
)

// sealed marks a cell whose candidate was taken. It is never handed out.
var sealed = &shared.Candidate{}

// bestCell holds the lowest candidate offered in a round. It is updated with a
// compare-and-swap loop and emptied exactly once by take.
type bestCell struct {
	p    atomic.Pointer[shared.Candidate]
	late atomic.Uint64
}

// offer replaces the held candidate with c when c is better. Offers after take
// are discarded and counted.
func (b *bestCell) offer(c *shared.Candidate) bool {
	for {
		cur := b.p.Load()
		if cur == sealed {
			b.late.Add(1)
			return false
		}
		if !c.Better(cur) {
			return false
		}
		if b.p.CompareAndSwap(cur, c) {
			return true
		}
	}
}

// peek returns the held candidate, or nil when there is none or it was taken.
func (b *bestCell) peek() *shared.Candidate {
	cur := b.p.Load()
	if cur == sealed {
		return nil
	}
	return cur
}

// take seals the cell and returns the candidate it held. Only the first call
// can return a candidate.
func (b *bestCell) take() *shared.Candidate {
	cur := b.p.Swap(sealed)
	if cur == sealed {
		return nil
	}
	return cur
}

func (b *bestCell) isSealed() bool {
	return b.p.Load() == sealed
}

// lateOffers returns the number of offers discarded because the cell was sealed.
func (b *bestCell) lateOffers() uint64 {
	return b.late.Load()
}

func (b *bestCell) reset() {
	b.p.Store(nil)
	b.late.Store(0)
}
