// Package cancellation builds low combined values out of a pool of proofs.
//
// The combined value of a set of indices is the XOR of their proofs, so two
// combinations that agree on a window of bits cancel that window when merged.
// The optimizer works from the most significant bit down: it buckets the
// current level by the next window of key bits, merges the disjoint pairs of
// every bucket and promotes the merged combinations to the next window. Each
// level doubles the number of indices per combination and zeroes the next key
// bits.
//
// The key width decides how often a pool collides. A pool of n proofs holds
// about n^2/2^(bits+1) pairs per window, so 16-bit keys suit pools of 2^16.
package cancellation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

const (
	DefaultMaxPerLevel = 1 << 16
	DefaultKeyBits     = 16

	// pairBudgetFactor bounds the pairs merged per level relative to the number
	// of survivors kept. Degenerate pools where many proofs share their key
	// bits would otherwise produce a quadratic number of pairs.
	pairBudgetFactor = 16
)

type option struct {
	maxPerLevel int
	maxWords    int
	keyBits     int
	logger      *zap.Logger
}

func (o *option) validate() error {
	if o.maxPerLevel < 1 {
		return fmt.Errorf("invalid `maxPerLevel`; expected: >= 1, given: %d", o.maxPerLevel)
	}
	if o.maxWords < 1 || o.maxWords > wideint.Words {
		return fmt.Errorf("invalid `maxWords`; expected: 1..%d, given: %d", wideint.Words, o.maxWords)
	}
	if o.keyBits < 1 || o.keyBits > 32 {
		return fmt.Errorf("invalid `keyBits`; expected: 1..32, given: %d", o.keyBits)
	}
	if o.logger == nil {
		return errors.New("`logger` must not be nil")
	}
	return nil
}

// OptionFunc is a function that sets an option for an Optimizer.
type OptionFunc func(*option) error

// WithMaxPerLevel caps the number of combinations promoted from one level to
// the next. The lowest values are kept.
func WithMaxPerLevel(n int) OptionFunc {
	return func(o *option) error {
		o.maxPerLevel = n
		return nil
	}
}

// WithKeyBits sets the width of the window of bits each level cancels.
func WithKeyBits(n int) OptionFunc {
	return func(o *option) error {
		o.keyBits = n
		return nil
	}
}

// WithMaxWords caps the number of leading 32-bit words the optimizer tries to
// cancel.
func WithMaxWords(n int) OptionFunc {
	return func(o *option) error {
		o.maxWords = n
		return nil
	}
}

// WithLogger sets the logger of the optimizer.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(o *option) error {
		o.logger = logger
		return nil
	}
}

// Optimizer searches a pool for combinations that cancel leading bits.
type Optimizer struct {
	maxIndices  uint32
	maxPerLevel int
	maxLevels   int
	keyBits     int
	logger      *zap.Logger
}

// NewOptimizer returns an optimizer producing combinations of at most maxIndices
// indices.
func NewOptimizer(maxIndices uint32, opts ...OptionFunc) (*Optimizer, error) {
	if maxIndices == 0 {
		return nil, shared.ConfigurationError{Field: "MaxIndices", Reason: "expected: > 0, given: 0"}
	}

	options := &option{
		maxPerLevel: DefaultMaxPerLevel,
		maxWords:    wideint.Words,
		keyBits:     DefaultKeyBits,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	return &Optimizer{
		maxIndices:  maxIndices,
		maxPerLevel: options.maxPerLevel,
		maxLevels:   options.maxWords * 32 / options.keyBits,
		keyBits:     options.keyBits,
		logger:      options.logger,
	}, nil
}

// Stats describes a run.
type Stats struct {
	// Pairs holds the number of pairs merged at each level, before truncation
	// to the per-level cap.
	Pairs []int
	// Survivors holds the number of combinations promoted from each level.
	Survivors []int
	// Truncated is set when a level hit the pair budget.
	Truncated bool
	Duration  time.Duration
}

// Result holds the combinations found by a run. Levels[i] holds combinations of
// 2^(i+1) indices whose leading (i+1)*KeyBits bits are zero, ordered by value.
type Result struct {
	Levels  [][]shared.Candidate
	KeyBits int
	Stats   Stats
}

// Best returns the lowest combination found, or nil when none was.
func (r *Result) Best() *shared.Candidate {
	if r == nil {
		return nil
	}
	var best *shared.Candidate
	for i := range r.Levels {
		if len(r.Levels[i]) == 0 {
			continue
		}
		c := &r.Levels[i][0]
		if c.Better(best) {
			best = c
		}
	}
	return best
}

type combination struct {
	indices []uint32
	value   wideint.Int
}

// Run searches pool for cancelling combinations. Pool indices must be distinct.
// A short pool yields fewer levels, not an error; the only error returned is
// the context's when it is done before the first level completes.
func (o *Optimizer) Run(ctx context.Context, pool []shared.ProofEntry) (*Result, error) {
	start := time.Now()
	res := &Result{KeyBits: o.keyBits}

	level := make([]combination, len(pool))
	for i, e := range pool {
		level[i] = combination{indices: []uint32{e.Index}, value: e.Proof}
	}

	for l := 0; l < o.maxLevels; l++ {
		if len(level) < 2 {
			break
		}
		if uint32(2*len(level[0].indices)) > o.maxIndices {
			break
		}

		offset := l * o.keyBits
		next, pairs, truncated, err := o.merge(ctx, level, offset)
		if err != nil {
			if len(res.Levels) == 0 {
				return nil, err
			}
			o.logger.Debug("cancellation: interrupted", zap.Int("level", l), zap.Error(err))
			break
		}

		res.Stats.Pairs = append(res.Stats.Pairs, pairs)
		res.Stats.Truncated = res.Stats.Truncated || truncated
		if len(next) == 0 {
			break
		}

		next = o.trim(next)
		res.Stats.Survivors = append(res.Stats.Survivors, len(next))
		res.Levels = append(res.Levels, toCandidates(next))

		o.logger.Debug("cancellation: level completed",
			zap.Int("level", l),
			zap.Int("offset", offset),
			zap.Int("pairs", pairs),
			zap.Int("survivors", len(next)),
			zap.Int("indices", len(next[0].indices)),
			zap.Stringer("best", next[0].value),
		)
		level = next
	}

	res.Stats.Duration = time.Since(start)
	return res, nil
}

// merge pairs the combinations of level that agree on the key bits at offset.
func (o *Optimizer) merge(ctx context.Context, level []combination, offset int) ([]combination, int, bool, error) {
	t := newTable(level, offset, o.keyBits)
	budget := o.maxPerLevel * pairBudgetFactor

	var next []combination
	seen := make(map[string]struct{}, min(t.collisions(), budget))
	pairs := 0

	for n, key := range t.keys {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, false, err
			}
		}

		bucket := t.buckets[key]
		for i := 0; i < len(bucket); i++ {
			a := &level[bucket[i]]
			for j := i + 1; j < len(bucket); j++ {
				b := &level[bucket[j]]
				if uint32(len(a.indices)+len(b.indices)) > o.maxIndices {
					continue
				}
				merged, ok := mergeIndices(a.indices, b.indices)
				if !ok {
					continue
				}
				k := setKey(merged)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}

				next = append(next, combination{indices: merged, value: wideint.Xor(a.value, b.value)})
				pairs++
				if pairs >= budget {
					return next, pairs, true, nil
				}
			}
		}
	}
	return next, pairs, false, nil
}

// trim orders combinations by value and keeps the lowest maxPerLevel.
func (o *Optimizer) trim(level []combination) []combination {
	sort.SliceStable(level, func(i, j int) bool {
		return wideint.Less(level[i].value, level[j].value)
	})
	if len(level) > o.maxPerLevel {
		level = level[:o.maxPerLevel]
	}
	return level
}

// mergeIndices merges two sorted index sets. ok is false when they share an
// index.
func mergeIndices(a, b []uint32) (merged []uint32, ok bool) {
	merged = make([]uint32, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			merged = append(merged, a[i])
			i++
		case a[i] > b[j]:
			merged = append(merged, b[j])
			j++
		default:
			return nil, false
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged, true
}

func setKey(indices []uint32) string {
	buf := make([]byte, 4*len(indices))
	for i, idx := range indices {
		binary.BigEndian.PutUint32(buf[4*i:], idx)
	}
	return string(buf)
}

func toCandidates(level []combination) []shared.Candidate {
	out := make([]shared.Candidate, len(level))
	for i, c := range level {
		out[i] = shared.Candidate{Indices: c.indices, Value: c.value}
	}
	return out
}
