// Package verifying checks a bid the way the exchange does before accepting it.
package verifying

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/bid"
	"github.com/spacemeshos/bitecoin/oracle"
	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

var (
	ErrRoundMismatch  = errors.New("bid is for another round")
	ErrNotIncreasing  = errors.New("indices are not strictly increasing")
	ErrTooManyIndices = errors.New("too many indices")
	ErrProofMismatch  = errors.New("claimed proof does not match the indices")
	ErrAboveTarget    = errors.New("proof is above the round target")
)

// VerifyBid recomputes the combined value of b's indices and checks it against
// the claimed proof and the round's target.
func VerifyBid(round *shared.RoundContext, b *bid.Bid, opts ...OptionFunc) error {
	options := &option{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return err
		}
	}
	if err := options.validate(); err != nil {
		return err
	}

	if b.RoundID != round.RoundID() {
		return fmt.Errorf("%w; expected: %d, given: %d", ErrRoundMismatch, round.RoundID(), b.RoundID)
	}
	if len(b.Indices) == 0 {
		return shared.ErrEmptyCandidate
	}
	if uint32(len(b.Indices)) > round.MaxIndices() {
		return fmt.Errorf("%w; expected: <= %d, given: %d", ErrTooManyIndices, round.MaxIndices(), len(b.Indices))
	}

	var value wideint.Int
	for i, index := range b.Indices {
		if i > 0 && index <= b.Indices[i-1] {
			return fmt.Errorf("%w: %d after %d", ErrNotIncreasing, index, b.Indices[i-1])
		}
		if !round.InDomain(index) {
			return fmt.Errorf("%w: %d >= %d", shared.ErrIndexOutOfDomain, index, round.DomainSize())
		}

		proof, err := options.proof(round, index)
		if err != nil {
			return err
		}
		value = wideint.Xor(value, proof)
	}

	if claimed := b.Value(); claimed != value {
		return fmt.Errorf("%w; expected: %v, given: %v", ErrProofMismatch, value, claimed)
	}
	if !round.AcceptsValue(value) {
		return fmt.Errorf("%w; target: %v, given: %v", ErrAboveTarget, round.Target(), value)
	}

	options.logger.Debug("verifying: bid accepted",
		zap.Uint64("round", b.RoundID),
		zap.Int("indices", len(b.Indices)),
		zap.Stringer("value", value),
	)
	return nil
}

func computeProof(round *shared.RoundContext, index uint32) (wideint.Int, error) {
	return oracle.Proof(round, index), nil
}
