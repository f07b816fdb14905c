// Package proving searches for the lowest combined value of a round and
// submits it as the round's bid.
//
// A Scheduler runs one round at a time. Its search tasks draw candidates,
// score them and offer them to a lock-free best cell. When the time budget is
// exhausted the first task to notice claims the right to finalize, takes the
// best candidate out of the cell and hands it to the submitter. Offers that
// arrive after that point are discarded.
package proving

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/bitecoin/bid"
	"github.com/spacemeshos/bitecoin/cancellation"
	"github.com/spacemeshos/bitecoin/config"
	"github.com/spacemeshos/bitecoin/initialization"
	"github.com/spacemeshos/bitecoin/oracle"
	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

// State is the phase of the current round.
type State int32

const (
	StateIdle State = iota
	StateSearching
	StateFinalizing
	StateSent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateFinalizing:
		return "finalizing"
	case StateSent:
		return "sent"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ErrRoundInProgress = errors.New("round in progress")

// Result describes a finished round.
type Result struct {
	Bid       *bid.Bid
	Candidate *shared.Candidate
	Strategy  config.Strategy

	// Evaluated is the number of candidates scored during the round.
	Evaluated uint64

	// DeadlineMiss is set when no candidate was found in time and the trivial
	// candidate was sent instead.
	DeadlineMiss bool
}

// Scheduler runs the search of one round at a time.
type Scheduler struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     Clock
	submitter bid.Submitter

	state         atomic.Int32
	best          bestCell
	final         atomic.Pointer[shared.Candidate]
	finalizing    atomic.Bool
	finalizations atomic.Uint32
	evaluated     atomic.Uint64
}

func NewScheduler(opts ...OptionFunc) (*Scheduler, error) {
	options := &option{
		cfg:    config.DefaultConfig(),
		logger: zap.NewNop(),
		clock:  systemClock{},
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:       *options.cfg,
		logger:    options.logger,
		clock:     options.clock,
		submitter: options.submitter,
	}, nil
}

// search is the state of the round being run.
type search struct {
	ctx      context.Context
	cancel   context.CancelFunc
	round    *shared.RoundContext
	deadline time.Time
	strategy config.Strategy
	cache    *initialization.Cache
	pool     *initialization.Pool
	logger   *zap.Logger

	result *Result
	err    error
}

// Run searches round until its deadline, less the configured submit margin, and
// submits the best candidate found. Exactly one bid is submitted per call, even
// when ctx is canceled early. The scheduler must be Idle; call Reset after Run
// returns to accept the next round.
func (s *Scheduler) Run(ctx context.Context, round *shared.RoundContext) (*Result, error) {
	if round == nil {
		return nil, shared.ConfigurationError{Field: "round", Reason: "expected: set"}
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSearching)) {
		return nil, fmt.Errorf("%w: %v", ErrRoundInProgress, s.State())
	}

	logger := s.logger.With(zap.Uint64("round", round.RoundID()))
	wo, err := oracle.New(oracle.WithRound(round), oracle.WithLogger(logger))
	if err != nil {
		s.state.Store(int32(StateIdle))
		return nil, err
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sr := &search{
		ctx:      ctx,
		cancel:   cancel,
		round:    round,
		deadline: round.Deadline().Add(-s.cfg.SubmitMargin),
		strategy: s.cfg.Strategy,
		cache:    initialization.NewCache(wo, s.cfg.MaxCacheEntries, logger),
		logger:   logger,
	}
	defer sr.cache.Reset()

	logger.Info("proving: round started",
		zap.String("strategy", string(sr.strategy)),
		zap.Int("workers", s.cfg.Workers),
		zap.Uint32("max_indices", round.MaxIndices()),
		zap.Uint32("domain", round.DomainSize()),
		zap.Duration("budget", sr.deadline.Sub(s.clock.Now())),
	)

	if sr.strategy != config.StrategyLegacy {
		pool, err := s.initPool(searchCtx, sr)
		switch {
		case err != nil:
			logger.Warn("proving: proof pool unavailable, falling back to legacy generation", zap.Error(err))
			sr.strategy = config.StrategyLegacy
		case pool.Len() == 0:
			logger.Warn("proving: empty proof pool, falling back to legacy generation")
			sr.strategy = config.StrategyLegacy
		default:
			sr.pool = pool
		}
	}

	eg, egCtx := errgroup.WithContext(searchCtx)
	eg.Go(func() error {
		timer := time.NewTimer(sr.deadline.Sub(s.clock.Now()))
		defer timer.Stop()
		select {
		case <-timer.C:
			s.finalize(sr)
		case <-egCtx.Done():
		}
		return nil
	})
	for i := 0; i < s.cfg.Workers; i++ {
		eg.Go(func() error {
			return s.searchTask(egCtx, sr, i)
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("proving: search task failed", zap.Error(err))
	}
	s.finalize(sr)

	if sr.result != nil {
		sr.result.Evaluated = s.evaluated.Load()
	}
	return sr.result, sr.err
}

func (s *Scheduler) initPool(ctx context.Context, sr *search) (*initialization.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, sr.deadline.Sub(s.clock.Now()))
	defer cancel()

	init, err := initialization.NewInitializer(
		initialization.WithConfig(s.cfg),
		initialization.WithRound(sr.round),
		initialization.WithCache(sr.cache),
		initialization.WithLogger(sr.logger),
	)
	if err != nil {
		return nil, err
	}
	return init.Initialize(ctx)
}

// searchTask draws and scores candidates until the budget is exhausted or the
// round is finalized.
func (s *Scheduler) searchTask(ctx context.Context, sr *search, worker int) error {
	round := sr.round
	sampler := NewSampler(oracle.StreamSeed(round, s.cfg.Seed, uint64(worker)), round, s.cfg.LegacyDomainFactor, sr.pool.Len())

	var evaluated uint64
	defer func() { s.evaluated.Add(evaluated) }()

	if sr.strategy == config.StrategyCancel && worker == 0 {
		s.runCancellation(ctx, sr)
	}

	entries := make([]shared.ProofEntry, round.MaxIndices())
	indices := make([]uint32, 0, round.MaxIndices())
	var acc Accumulator

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !s.clock.Now().Before(sr.deadline) {
			s.finalize(sr)
			return nil
		}

		var value wideint.Int
		switch sr.strategy {
		case config.StrategyLegacy:
			indices = append(indices[:0], sampler.Legacy()...)
			if err := sr.cache.GetMany(indices, entries[:len(indices)]); err != nil {
				return err
			}
			value = Combine(entries[:len(indices)]...)
		default:
			acc.Reset()
			indices = indices[:0]
			for _, p := range sampler.Pool() {
				e := sr.pool.Entries[p]
				acc.Add(e)
				indices = append(indices, e.Index)
			}
			value = acc.Value()
		}
		evaluated++

		if cur := s.best.peek(); cur != nil && !value.Less(cur.Value) {
			continue
		}
		c := &shared.Candidate{Indices: slices.Clone(indices), Value: value}
		if s.best.offer(c) {
			sr.logger.Debug("proving: new best candidate",
				zap.Int("worker", worker),
				zap.Int("indices", c.Len()),
				zap.Stringer("value", c.Value),
			)
		}
	}
}

// runCancellation offers the lowest combination the optimizer finds in the pool.
// Failures only cost the head start; the task carries on sampling the pool.
func (s *Scheduler) runCancellation(ctx context.Context, sr *search) {
	ctx, cancel := context.WithTimeout(ctx, sr.deadline.Sub(s.clock.Now()))
	defer cancel()

	opt, err := cancellation.NewOptimizer(sr.round.MaxIndices(),
		cancellation.WithMaxPerLevel(s.cfg.MaxPerLevel),
		cancellation.WithMaxWords(s.cfg.MaxWords),
		cancellation.WithKeyBits(s.cfg.KeyBits),
		cancellation.WithLogger(sr.logger),
	)
	if err != nil {
		sr.logger.Warn("proving: cancellation optimizer unavailable", zap.Error(err))
		return
	}

	res, err := opt.Run(ctx, sr.pool.Entries)
	if err != nil {
		sr.logger.Warn("proving: cancellation interrupted", zap.Error(err))
		return
	}

	sr.logger.Info("proving: cancellation completed",
		zap.Int("levels", len(res.Levels)),
		zap.Int("key_bits", res.KeyBits),
		zap.Ints("pairs", res.Stats.Pairs),
		zap.Bool("truncated", res.Stats.Truncated),
		zap.Duration("duration", res.Stats.Duration),
	)
	if best := res.Best(); best != nil {
		s.best.offer(best)
	}
}

// finalize ends the round. Only the first caller proceeds; it seals the best
// cell and submits what it held.
func (s *Scheduler) finalize(sr *search) {
	if !s.finalizing.CompareAndSwap(false, true) {
		return
	}
	s.finalizations.Add(1)
	s.state.Store(int32(StateFinalizing))
	sr.cancel()
	defer s.state.Store(int32(StateSent))

	res := &Result{Strategy: sr.strategy}
	best := s.best.take()
	if best == nil {
		sr.logger.Warn("proving: sending trivial bid", zap.Error(shared.ErrDeadlineMiss))
		res.DeadlineMiss = true

		e, err := sr.cache.Get(0)
		if err != nil {
			sr.err = shared.ConfigurationError{
				Field:  "DomainSize",
				Reason: fmt.Sprintf("no candidate can be built: %v", err),
			}
			return
		}
		best = &shared.Candidate{Indices: []uint32{e.Index}, Value: e.Proof}
	}
	s.final.Store(best)

	if !sr.round.AcceptsValue(best.Value) {
		sr.logger.Warn("proving: best value is above the round target",
			zap.Stringer("value", best.Value),
			zap.Stringer("target", sr.round.Target()),
		)
	}

	b, err := bid.New(sr.round.RoundID(), best, s.clock.Now())
	if err != nil {
		sr.err = err
		return
	}
	res.Bid = b
	res.Candidate = best
	sr.result = res

	if err := s.submitter.Submit(context.WithoutCancel(sr.ctx), b); err != nil {
		sr.logger.Error("proving: bid submission failed", zap.Error(err))
		sr.err = fmt.Errorf("submit bid: %w", err)
		return
	}
	sr.logger.Info("proving: bid sent",
		zap.Int("indices", len(b.Indices)),
		zap.Stringer("value", best.Value),
		zap.Bool("deadline_miss", res.DeadlineMiss),
	)
}

// State returns the phase of the current round.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Best returns the lowest candidate of the current round so far, or the one
// that was sent. It must not be modified.
func (s *Scheduler) Best() *shared.Candidate {
	if c := s.best.peek(); c != nil {
		return c
	}
	return s.final.Load()
}

// Finalizations returns how many times the current round was finalized.
func (s *Scheduler) Finalizations() uint32 {
	return s.finalizations.Load()
}

// LateOffers returns the number of candidates discarded because they arrived
// after the round was finalized.
func (s *Scheduler) LateOffers() uint64 {
	return s.best.lateOffers()
}

// Reset returns a scheduler whose round has ended to Idle.
func (s *Scheduler) Reset() error {
	switch st := s.State(); st {
	case StateSearching, StateFinalizing:
		return fmt.Errorf("%w: %v", ErrRoundInProgress, st)
	}

	s.best.reset()
	s.final.Store(nil)
	s.finalizing.Store(false)
	s.finalizations.Store(0)
	s.evaluated.Store(0)
	s.state.Store(int32(StateIdle))
	return nil
}
