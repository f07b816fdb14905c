package verifying

import (
	"errors"

	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/initialization"
	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

type option struct {
	logger *zap.Logger
	proof  func(round *shared.RoundContext, index uint32) (wideint.Int, error)
}

func (o *option) validate() error {
	if o.logger == nil {
		return errors.New("`logger` must not be nil")
	}
	if o.proof == nil {
		o.proof = computeProof
	}
	return nil
}

type OptionFunc func(*option) error

// WithLogger sets the logger used during verification.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(o *option) error {
		o.logger = logger
		return nil
	}
}

// WithCache looks proofs up in the cache of the bid's round instead of
// recomputing them.
func WithCache(cache *initialization.Cache) OptionFunc {
	return func(o *option) error {
		if cache == nil {
			return errors.New("`cache` must not be nil")
		}
		o.proof = func(round *shared.RoundContext, index uint32) (wideint.Int, error) {
			if cache.Round() != round {
				return computeProof(round, index)
			}
			e, err := cache.Get(index)
			return e.Proof, err
		}
		return nil
	}
}

// withProofFunc replaces the proof computation. It is meant for tests only.
func withProofFunc(f func(round *shared.RoundContext, index uint32) (wideint.Int, error)) OptionFunc {
	return func(o *option) error {
		o.proof = f
		return nil
	}
}
