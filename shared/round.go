package shared

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/spacemeshos/bitecoin/wideint"
)

// MultiplierWords is the number of 32-bit words in the round constant.
const MultiplierWords = wideint.Words / 2

// RoundParams are the parameters announced by the exchange at the start of a round.
type RoundParams struct {
	RoundID   uint64
	Salt      uint64
	ChainData []byte

	// Multiplier is the 128-bit round constant, least significant word first,
	// in the order the exchange announces it.
	Multiplier [MultiplierWords]uint32
	Steps      uint32

	MaxIndices uint32
	DomainSize uint32

	// Target scales the difficulty. A bid is only acceptable when its value is not
	// above Target. The zero value disables the check.
	Target wideint.Int

	Deadline time.Time
}

// RoundContext is the validated, read-only view of one round's parameters. It is
// shared by every search task of the round.
type RoundContext struct {
	params      RoundParams
	chainDigest uint64
	multiplier  wideint.Int
}

// NewRoundContext validates p and returns the round context for it.
func NewRoundContext(p RoundParams) (*RoundContext, error) {
	if p.MaxIndices == 0 {
		return nil, ConfigurationError{Field: "MaxIndices", Reason: "expected: > 0, given: 0"}
	}
	if p.DomainSize < p.MaxIndices {
		return nil, ConfigurationError{
			Field:  "DomainSize",
			Reason: fmt.Sprintf("expected: >= MaxIndices (%d), given: %d", p.MaxIndices, p.DomainSize),
		}
	}
	if p.Steps == 0 {
		return nil, ConfigurationError{Field: "Steps", Reason: "expected: > 0, given: 0"}
	}
	if p.Multiplier == [MultiplierWords]uint32{} {
		return nil, ConfigurationError{Field: "Multiplier", Reason: "expected: non-zero"}
	}
	if p.Deadline.IsZero() {
		return nil, ConfigurationError{Field: "Deadline", Reason: "expected: set"}
	}

	p.ChainData = append([]byte(nil), p.ChainData...)

	var m wideint.Int
	m[0] = uint64(p.Multiplier[1])<<32 | uint64(p.Multiplier[0])
	m[1] = uint64(p.Multiplier[3])<<32 | uint64(p.Multiplier[2])

	return &RoundContext{
		params:      p,
		chainDigest: ChainDigest(p.ChainData),
		multiplier:  m,
	}, nil
}

// ChainDigest is the 64-bit FNV-1a digest of the round's chain data.
func ChainDigest(chainData []byte) uint64 {
	h := fnv.New64a()
	h.Write(chainData)
	return h.Sum64()
}

// RoundID returns the id the exchange gave the round.
func (r *RoundContext) RoundID() uint64 {
	return r.params.RoundID
}

func (r *RoundContext) Salt() uint64 {
	return r.params.Salt
}

// Steps returns the number of chain steps per proof.
func (r *RoundContext) Steps() uint32 {
	return r.params.Steps
}

// MaxIndices returns the maximum number of indices in a bid.
func (r *RoundContext) MaxIndices() uint32 {
	return r.params.MaxIndices
}

// DomainSize returns the number of valid indices; indices are 0..DomainSize-1.
func (r *RoundContext) DomainSize() uint32 {
	return r.params.DomainSize
}

// Target returns the round target. Zero means no target.
func (r *RoundContext) Target() wideint.Int {
	return r.params.Target
}

func (r *RoundContext) Deadline() time.Time {
	return r.params.Deadline
}

// ChainDigest returns the FNV-1a digest of the round's chain data.
func (r *RoundContext) ChainDigest() uint64 {
	return r.chainDigest
}

// Multiplier returns the 128-bit round constant as a wide integer.
func (r *RoundContext) Multiplier() wideint.Int {
	return r.multiplier
}

// Params returns a copy of the parameters the context was built from.
func (r *RoundContext) Params() RoundParams {
	p := r.params
	p.ChainData = append([]byte(nil), p.ChainData...)
	return p
}

// InDomain reports whether index is a valid index for the round.
func (r *RoundContext) InDomain(index uint32) bool {
	return index < r.params.DomainSize
}

// AcceptsValue reports whether v satisfies the round target.
func (r *RoundContext) AcceptsValue(v wideint.Int) bool {
	if r.params.Target.IsZero() {
		return true
	}
	return wideint.Cmp(v, r.params.Target) <= 0
}
