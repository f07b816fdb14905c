// Package initialization populates the proof pool of a round.
//
// The pool is the raw material of the pool and cancellation strategies: the
// proofs of a contiguous index range starting at 0, computed once at the start
// of a round, either on the search workers or on a compute device.
package initialization

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/bitecoin/config"
	"github.com/spacemeshos/bitecoin/internal/device"
	"github.com/spacemeshos/bitecoin/oracle"
	"github.com/spacemeshos/bitecoin/shared"
)

// Pool is the set of precomputed proofs of a round. Entries are ordered by index
// and must not be modified.
type Pool struct {
	Entries []shared.ProofEntry
}

// Len returns the number of entries in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

type option struct {
	cfg    *config.Config
	round  *shared.RoundContext
	cache  *Cache
	logger *zap.Logger

	availableMemory func() (uint64, error)
}

func (o *option) validate() error {
	if o.round == nil {
		return ErrRoundMissing
	}
	return o.cfg.Validate()
}

// OptionFunc is a function that sets an option for an Initializer.
type OptionFunc func(*option) error

// WithConfig sets the engine configuration.
func WithConfig(cfg config.Config) OptionFunc {
	return func(o *option) error {
		o.cfg = &cfg
		return nil
	}
}

// WithRound sets the round whose pool is computed.
func WithRound(round *shared.RoundContext) OptionFunc {
	return func(o *option) error {
		o.round = round
		return nil
	}
}

// WithCache makes the initializer store the pool in the cache of the round.
func WithCache(cache *Cache) OptionFunc {
	return func(o *option) error {
		if cache == nil {
			return errors.New("`cache` must not be nil")
		}
		o.cache = cache
		return nil
	}
}

// WithLogger sets the logger of the initializer.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(o *option) error {
		o.logger = logger
		return nil
	}
}

func withAvailableMemory(f func() (uint64, error)) OptionFunc {
	return func(o *option) error {
		o.availableMemory = f
		return nil
	}
}

// Initializer computes the proof pool of a round.
type Initializer struct {
	numEntriesComputed atomic.Uint64

	cfg    config.Config
	round  *shared.RoundContext
	cache  *Cache
	logger *zap.Logger

	availableMemory func() (uint64, error)

	mtx          sync.Mutex
	initializing bool
}

func NewInitializer(opts ...OptionFunc) (*Initializer, error) {
	options := &option{
		cfg:             config.DefaultConfig(),
		logger:          zap.NewNop(),
		availableMemory: availableMemory,
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	return &Initializer{
		cfg:             *options.cfg,
		round:           options.round,
		cache:           options.cache,
		logger:          options.logger,
		availableMemory: options.availableMemory,
	}, nil
}

// NumEntriesComputed returns the number of pool entries computed so far.
func (init *Initializer) NumEntriesComputed() uint64 {
	return init.numEntriesComputed.Load()
}

// Initialize computes the pool. When a compute provider is configured the work
// is sent to it; if the provider fails the pool is computed on the CPU instead.
func (init *Initializer) Initialize(ctx context.Context) (*Pool, error) {
	init.mtx.Lock()
	if init.initializing {
		init.mtx.Unlock()
		return nil, ErrAlreadyInitializing
	}
	init.initializing = true
	init.mtx.Unlock()

	defer func() {
		init.mtx.Lock()
		init.initializing = false
		init.mtx.Unlock()
	}()

	init.numEntriesComputed.Store(0)

	n, err := init.poolSize()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Pool{}, nil
	}

	start := time.Now()
	init.logger.Info("initialization: computing proof pool",
		zap.Uint64("round", init.round.RoundID()),
		zap.Uint32("entries", n),
		zap.String("size", bytefmt.ByteSize(uint64(n)*config.EntrySize)),
		zap.Int("workers", init.cfg.Workers),
	)

	var entries []shared.ProofEntry
	if init.cfg.ProviderID != nil {
		entries, err = init.computeOnDevice(ctx, *init.cfg.ProviderID, n)
		switch {
		case errors.Is(err, shared.ErrResourceExhausted):
			init.logger.Warn("initialization: compute provider unavailable, falling back to CPU",
				zap.Uint32("provider", *init.cfg.ProviderID),
				zap.Error(err),
			)
			init.numEntriesComputed.Store(0)
			entries, err = init.computeOnCPU(ctx, n)
		case err != nil:
			return nil, err
		}
	} else {
		entries, err = init.computeOnCPU(ctx, n)
	}
	if err != nil {
		return nil, err
	}

	if init.cache != nil {
		init.cache.Put(entries...)
	}

	init.logger.Info("initialization: proof pool completed",
		zap.Int("entries", len(entries)),
		zap.Duration("duration", time.Since(start)),
	)
	return &Pool{Entries: entries}, nil
}

// poolSize returns the number of entries that can be computed for the round
// given the configured pool size and the memory limit.
func (init *Initializer) poolSize() (uint32, error) {
	layout := config.DerivePoolLayout(init.cfg, init.round.DomainSize())

	limit := init.cfg.MemoryLimit
	if limit == 0 {
		available, err := init.availableMemory()
		if err != nil {
			init.logger.Warn("initialization: failed to query available memory", zap.Error(err))
			return layout.NumEntries, nil
		}
		limit = available
	}

	if layout.Bytes <= limit {
		return layout.NumEntries, nil
	}

	fit := config.FitEntries(limit)
	if fit < config.MinPoolSize {
		return 0, shared.ResourceError{
			Resource: "memory",
			Err: fmt.Errorf("%w; required: %v, available: %v",
				ErrPoolTooSmall, bytefmt.ByteSize(layout.Bytes), bytefmt.ByteSize(limit)),
		}
	}

	init.logger.Warn("initialization: not enough memory for the configured pool, shrinking it",
		zap.String("required", bytefmt.ByteSize(layout.Bytes)),
		zap.String("available", bytefmt.ByteSize(limit)),
		zap.Uint32("entries", fit),
		zap.Error(shared.ErrResourceExhausted),
	)
	return fit, nil
}

func (init *Initializer) computeOnCPU(ctx context.Context, n uint32) ([]shared.ProofEntry, error) {
	wo, err := oracle.New(oracle.WithRound(init.round), oracle.WithLogger(init.logger))
	if err != nil {
		return nil, err
	}

	entries := make([]shared.ProofEntry, n)
	layout := config.DerivePoolLayout(init.cfg, n)

	eg, ctx := errgroup.WithContext(ctx)
	for w := uint32(0); w < layout.Workers; w++ {
		start := w * layout.EntriesPerWorker
		end := start + layout.EntriesPerWorker
		if w == layout.Workers-1 {
			end = n
		}

		eg.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				e, err := wo.Position(i)
				if err != nil {
					return err
				}
				entries[i] = e

				done := init.numEntriesComputed.Add(1)
				if init.cfg.LogRate > 0 && done%init.cfg.LogRate == 0 {
					init.logger.Debug("initialization: progress", zap.Uint64("computed", done), zap.Uint32("target", n))
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (init *Initializer) computeOnDevice(ctx context.Context, providerID uint32, n uint32) ([]shared.ProofEntry, error) {
	dev, err := device.Open(providerID, device.WithLogger(init.logger))
	if err != nil {
		return nil, err
	}

	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}

	job := dev.Submit(ctx, init.round, indices)
	defer job.Cancel()

	ticker := time.NewTicker(init.cfg.PollInterval)
	defer ticker.Stop()

	for {
		entries, done, err := job.Poll()
		if done {
			if err != nil {
				return nil, err
			}
			init.numEntriesComputed.Store(uint64(len(entries)))
			return entries, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
