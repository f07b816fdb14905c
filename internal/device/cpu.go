package device

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/bitecoin/oracle"
	"github.com/spacemeshos/bitecoin/shared"
)

// cpuChunk is the number of indices a CPU worker computes between context checks.
const cpuChunk = 256

// cpuBackend computes proofs on all CPU cores.
type cpuBackend struct{}

func (cpuBackend) ComputeBatch(ctx context.Context, round *shared.RoundContext, indices []uint32, out []shared.ProofEntry) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())

	for start := 0; start < len(indices); start += cpuChunk {
		end := min(start+cpuChunk, len(indices))
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				if !round.InDomain(indices[i]) {
					return shared.ErrIndexOutOfDomain
				}
				out[i] = shared.ProofEntry{Index: indices[i], Proof: oracle.Proof(round, indices[i])}
			}
			return nil
		})
	}
	return eg.Wait()
}
