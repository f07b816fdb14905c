package proving

import (
	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

// Combine returns the combined value of entries: the XOR of their proofs. The
// order of entries does not matter.
func Combine(entries ...shared.ProofEntry) wideint.Int {
	var v wideint.Int
	for _, e := range entries {
		v = wideint.Xor(v, e.Proof)
	}
	return v
}

// Accumulator folds entries into a combined value one at a time, so a search
// task can build candidates without allocating.
type Accumulator struct {
	value wideint.Int
}

func (a *Accumulator) Add(e shared.ProofEntry) {
	a.value = wideint.Xor(a.value, e.Proof)
}

func (a *Accumulator) Value() wideint.Int { return a.value }

func (a *Accumulator) Reset() {
	a.value = wideint.Int{}
}
