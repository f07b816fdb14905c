// Package oracle computes the per-index proof of a round.
//
// The proof of an index is the result of a fixed number of multiply-with-carry
// steps over a 256-bit state seeded from the round parameters and the index. The
// steps depend on each other and run strictly one after the other; parallelism
// is only ever applied across indices.
package oracle

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

// ErrRoundMissing is returned by New when no round was given.
var ErrRoundMissing = errors.New("`round` is required")

type option struct {
	round  *shared.RoundContext
	logger *zap.Logger
}

func (o *option) validate() error {
	if o.round == nil {
		return ErrRoundMissing
	}
	return nil
}

// OptionFunc is a function that sets an option for a WorkOracle instance.
type OptionFunc func(*option) error

// WithRound sets the round the oracle computes proofs for.
func WithRound(round *shared.RoundContext) OptionFunc {
	return func(opts *option) error {
		opts.round = round
		return nil
	}
}

// WithLogger sets the logger of the oracle.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opts *option) error {
		opts.logger = logger
		return nil
	}
}

// WorkOracle computes proofs for the indices of one round. It is stateless and
// safe for concurrent use.
type WorkOracle struct {
	round  *shared.RoundContext
	logger *zap.Logger
}

// New returns a WorkOracle for the configured round.
func New(opts ...OptionFunc) (*WorkOracle, error) {
	options := &option{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	return &WorkOracle{
		round:  options.round,
		logger: options.logger,
	}, nil
}

// Round returns the round the oracle was created for.
func (w *WorkOracle) Round() *shared.RoundContext {
	return w.round
}

// Position computes the proof of a single index.
func (w *WorkOracle) Position(index uint32) (shared.ProofEntry, error) {
	if !w.round.InDomain(index) {
		return shared.ProofEntry{}, fmt.Errorf("%w: %d >= %d", shared.ErrIndexOutOfDomain, index, w.round.DomainSize())
	}
	return shared.ProofEntry{Index: index, Proof: Proof(w.round, index)}, nil
}

// Positions computes the proofs of the index range [start, end].
func (w *WorkOracle) Positions(start, end uint32) ([]shared.ProofEntry, error) {
	if start > end {
		return nil, fmt.Errorf("invalid `start` and `end`; expected: start <= end, given: %v > %v", start, end)
	}
	if !w.round.InDomain(end) {
		return nil, fmt.Errorf("%w: %d >= %d", shared.ErrIndexOutOfDomain, end, w.round.DomainSize())
	}

	entries := make([]shared.ProofEntry, 0, end-start+1)
	for i := uint64(start); i <= uint64(end); i++ {
		index := uint32(i)
		entries = append(entries, shared.ProofEntry{Index: index, Proof: Proof(w.round, index)})
	}
	return entries, nil
}

// Indices computes the proofs of the given indices, in order.
func (w *WorkOracle) Indices(indices []uint32) ([]shared.ProofEntry, error) {
	entries := make([]shared.ProofEntry, len(indices))
	for i, index := range indices {
		e, err := w.Position(index)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

// Proof returns the proof of index under round.
func Proof(round *shared.RoundContext, index uint32) wideint.Int {
	return ComputeChain(Seed(round, index), round)
}

// Seed builds the initial chain state of an index. From the most significant
// limb down it holds the chain digest, the round salt, the round id and the index.
func Seed(round *shared.RoundContext, index uint32) wideint.Int {
	return wideint.Int{
		uint64(index),
		round.RoundID(),
		round.Salt(),
		round.ChainDigest(),
	}
}

// ComputeChain applies the round's number of transition steps to seed.
func ComputeChain(seed wideint.Int, round *shared.RoundContext) wideint.Int {
	c := round.Multiplier()
	state := seed
	for i := uint32(0); i < round.Steps(); i++ {
		state = TransitionStep(state, c)
	}
	return state
}

// TransitionStep advances the chain by one step:
//
//	next = lo128(state) * c + hi128(state)
//
// c must fit in 128 bits, so the result never wraps.
func TransitionStep(state, c wideint.Int) wideint.Int {
	_, product := wideint.MulAcc(state.Lo128(), c)
	return wideint.Add(product, state.Hi128())
}
