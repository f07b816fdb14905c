package oracle

import (
	"encoding/binary"

	"github.com/spacemeshos/sha256-simd"

	"github.com/spacemeshos/bitecoin/shared"
)

// StreamSeed derives the seed of an independent random stream for a round, e.g.
// one per search worker. The same round and stream always give the same seed.
func StreamSeed(round *shared.RoundContext, base, stream uint64) int64 {
	var buf [40]byte
	binary.BigEndian.PutUint64(buf[0:], round.RoundID())
	binary.BigEndian.PutUint64(buf[8:], round.Salt())
	binary.BigEndian.PutUint64(buf[16:], round.ChainDigest())
	binary.BigEndian.PutUint64(buf[24:], base)
	binary.BigEndian.PutUint64(buf[32:], stream)

	sum := sha256.Sum256(buf[:])
	return int64(binary.LittleEndian.Uint64(sum[:]) >> 1)
}
