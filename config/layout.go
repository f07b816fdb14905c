package config

import (
	"github.com/spacemeshos/bitecoin/wideint"
)

// EntrySize is the in-memory size of one pool entry: the proof plus its index,
// padded to the struct alignment.
const EntrySize = wideint.Size + 8

// PoolLayout describes how the proof pool of a round is split across workers.
type PoolLayout struct {
	NumEntries       uint32
	Workers          uint32
	EntriesPerWorker uint32
	LastWorkerShare  uint32
	Bytes            uint64
}

// DerivePoolLayout sizes the pool for a round with the given domain. The pool
// never exceeds the domain.
func DerivePoolLayout(cfg Config, domainSize uint32) PoolLayout {
	n := cfg.PoolSize
	if n > domainSize {
		n = domainSize
	}

	workers := uint32(cfg.Workers)
	if workers == 0 {
		workers = 1
	}
	if workers > n && n > 0 {
		workers = n
	}

	perWorker := n / workers
	last := perWorker + n%workers

	return PoolLayout{
		NumEntries:       n,
		Workers:          workers,
		EntriesPerWorker: perWorker,
		LastWorkerShare:  last,
		Bytes:            uint64(n) * EntrySize,
	}
}

// FitEntries returns the number of entries that fit in limit bytes.
func FitEntries(limit uint64) uint32 {
	n := limit / EntrySize
	if n > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
