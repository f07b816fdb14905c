package cmd

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spacemeshos/sha256-simd"
	"github.com/spf13/pflag"

	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

// roundFlags describe simulated rounds. Values the exchange would pick at
// random are derived from the chain data and the round id, so the same flags
// always give the same rounds.
type roundFlags struct {
	id         uint64
	salt       uint64
	chainData  string
	multiplier string
	target     string
	steps      uint32
	maxIndices uint32
	domain     uint32
	duration   time.Duration
}

func (f *roundFlags) register(flags *pflag.FlagSet) {
	flags.Uint64Var(&f.id, "round-id", 1, "id of the (first) round")
	flags.Uint64Var(&f.salt, "salt", 0, "round salt, derived from the chain data when 0")
	flags.StringVar(&f.chainData, "chain-data", "bitecoin", "chain data of the round")
	flags.StringVar(&f.multiplier, "multiplier", "", "128-bit round constant as 32 hex digits, derived from the chain data when empty")
	flags.StringVar(&f.target, "target", "", "round target as up to 64 hex digits, none when empty")
	flags.Uint32Var(&f.steps, "steps", 64, "chain steps per proof")
	flags.Uint32Var(&f.maxIndices, "max-indices", 16, "maximum number of indices per bid")
	flags.Uint32Var(&f.domain, "domain", 1<<20, "number of indices in the round domain")
	flags.DurationVar(&f.duration, "duration", time.Second, "time between the round announcement and its deadline")
}

func (f *roundFlags) digest(roundID uint64) [32]byte {
	buf := make([]byte, 8, 8+len(f.chainData))
	binary.BigEndian.PutUint64(buf, roundID)
	buf = append(buf, f.chainData...)
	return sha256.Sum256(buf)
}

// params returns the parameters of round id, announced at start.
func (f *roundFlags) params(id uint64, start time.Time) (shared.RoundParams, error) {
	p := shared.RoundParams{
		RoundID:    id,
		Salt:       f.salt,
		ChainData:  []byte(f.chainData),
		Steps:      f.steps,
		MaxIndices: f.maxIndices,
		DomainSize: f.domain,
		Deadline:   start.Add(f.duration),
	}

	d := f.digest(id)
	if p.Salt == 0 {
		p.Salt = binary.BigEndian.Uint64(d[0:8])
	}

	raw := d[8:24]
	if f.multiplier != "" {
		b, err := hex.DecodeString(f.multiplier)
		if err != nil {
			return p, fmt.Errorf("invalid `multiplier`: %w", err)
		}
		if len(b) != 16 {
			return p, fmt.Errorf("invalid `multiplier`; expected: 32 hex digits, given: %d", 2*len(b))
		}
		raw = b
	}
	// the most significant word comes first in the hex form
	for i := range p.Multiplier {
		p.Multiplier[shared.MultiplierWords-1-i] = binary.BigEndian.Uint32(raw[4*i:])
	}

	if f.target != "" {
		b, err := hex.DecodeString(f.target)
		if err != nil {
			return p, fmt.Errorf("invalid `target`: %w", err)
		}
		if len(b) > wideint.Size {
			return p, fmt.Errorf("invalid `target`; expected: <= 64 hex digits, given: %d", 2*len(b))
		}
		var padded [wideint.Size]byte
		copy(padded[wideint.Size-len(b):], b)
		p.Target, _ = wideint.FromBytes(padded[:])
	}
	return p, nil
}

func (f *roundFlags) round(id uint64, start time.Time) (*shared.RoundContext, error) {
	p, err := f.params(id, start)
	if err != nil {
		return nil, err
	}
	return shared.NewRoundContext(p)
}
