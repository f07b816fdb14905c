// Package roundtest provides round contexts for tests.
package roundtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/bitecoin/shared"
)

// Params returns valid round parameters with a small domain and a deadline one
// second from now.
func Params() shared.RoundParams {
	return shared.RoundParams{
		RoundID:    42,
		Salt:       0x5eed5eed5eed5eed,
		ChainData:  []byte("hello world, challenge me!!!!!!!"),
		Multiplier: [shared.MultiplierWords]uint32{0x9e3779b9, 0x7f4a7c15, 0xf39cc060, 0x5cedc834},
		Steps:      32,
		MaxIndices: 4,
		DomainSize: 40,
		Deadline:   time.Now().Add(time.Second),
	}
}

// Round returns a round context built from Params after applying modify.
func Round(tb testing.TB, modify ...func(p *shared.RoundParams)) *shared.RoundContext {
	tb.Helper()
	p := Params()
	for _, m := range modify {
		m(&p)
	}
	r, err := shared.NewRoundContext(p)
	require.NoError(tb, err)
	return r
}

// WithDomain sets the domain size.
func WithDomain(n uint32) func(p *shared.RoundParams) {
	return func(p *shared.RoundParams) { p.DomainSize = n }
}

// WithMaxIndices sets the maximum number of indices per bid.
func WithMaxIndices(n uint32) func(p *shared.RoundParams) {
	return func(p *shared.RoundParams) { p.MaxIndices = n }
}

// WithDeadline sets the round deadline.
func WithDeadline(d time.Time) func(p *shared.RoundParams) {
	return func(p *shared.RoundParams) { p.Deadline = d }
}

// WithSteps sets the number of chain steps.
func WithSteps(n uint32) func(p *shared.RoundParams) {
	return func(p *shared.RoundParams) { p.Steps = n }
}
