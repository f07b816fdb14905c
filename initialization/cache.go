package initialization

import (
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spacemeshos/bitecoin/oracle"
	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

// Cache memoizes the proofs of one round. It is safe for concurrent use.
//
// Concurrent misses on the same index share one computation. Once an index is
// stored it is never computed again. The capacity is bounded by the round's
// domain and by the configured limit; when it is reached, further proofs are
// computed but not stored.
type Cache struct {
	oracle   *oracle.WorkOracle
	capacity int
	logger   *zap.Logger

	mtx     sync.RWMutex
	entries map[uint32]wideint.Int

	group    singleflight.Group
	computed atomic.Uint64
	full     atomic.Bool
}

// NewCache returns an empty cache for the oracle's round holding at most
// maxEntries proofs. maxEntries of 0 disables storing.
func NewCache(wo *oracle.WorkOracle, maxEntries int, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := maxEntries
	if domain := int(wo.Round().DomainSize()); domain < capacity {
		capacity = domain
	}
	return &Cache{
		oracle:   wo,
		capacity: capacity,
		logger:   logger,
		entries:  make(map[uint32]wideint.Int, min(capacity, 1<<16)),
	}
}

// Round returns the round the cache belongs to.
func (c *Cache) Round() *shared.RoundContext {
	return c.oracle.Round()
}

// Get returns the proof of index, computing it on the first request.
func (c *Cache) Get(index uint32) (shared.ProofEntry, error) {
	if p, ok := c.lookup(index); ok {
		return shared.ProofEntry{Index: index, Proof: p}, nil
	}

	v, err, _ := c.group.Do(strconv.FormatUint(uint64(index), 10), func() (any, error) {
		if p, ok := c.lookup(index); ok {
			return p, nil
		}
		e, err := c.oracle.Position(index)
		if err != nil {
			return nil, err
		}
		c.computed.Add(1)
		c.store(e)
		return e.Proof, nil
	})
	if err != nil {
		return shared.ProofEntry{}, err
	}
	return shared.ProofEntry{Index: index, Proof: v.(wideint.Int)}, nil
}

// GetMany fills out with the proofs of indices.
func (c *Cache) GetMany(indices []uint32, out []shared.ProofEntry) error {
	for i, index := range indices {
		e, err := c.Get(index)
		if err != nil {
			return err
		}
		out[i] = e
	}
	return nil
}

// Put stores already computed proofs, e.g. a pool computed on a device.
func (c *Cache) Put(entries ...shared.ProofEntry) {
	for _, e := range entries {
		c.store(e)
	}
}

// Len returns the number of stored proofs.
func (c *Cache) Len() int {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return len(c.entries)
}

// Computations returns how many proofs the cache computed itself.
func (c *Cache) Computations() uint64 {
	return c.computed.Load()
}

// Reset evicts every entry. It is called when the round ends.
func (c *Cache) Reset() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.entries = make(map[uint32]wideint.Int)
	c.full.Store(false)
}

func (c *Cache) lookup(index uint32) (wideint.Int, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	p, ok := c.entries[index]
	return p, ok
}

func (c *Cache) store(e shared.ProofEntry) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.entries[e.Index]; ok {
		return
	}
	if len(c.entries) >= c.capacity {
		if c.full.CompareAndSwap(false, true) {
			c.logger.Warn("proof cache: capacity reached, further proofs are not stored",
				zap.Int("capacity", c.capacity),
				zap.Error(shared.ErrResourceExhausted),
			)
		}
		return
	}
	c.entries[e.Index] = e.Proof
}
