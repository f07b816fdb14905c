package cancellation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spacemeshos/bitecoin/config"
	"github.com/spacemeshos/bitecoin/internal/roundtest"
	"github.com/spacemeshos/bitecoin/oracle"
	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

func entry(index uint32, words ...uint32) shared.ProofEntry {
	var w [wideint.Words]uint32
	copy(w[:], words)
	return shared.ProofEntry{Index: index, Proof: wideint.FromWords(w)}
}

// distinctPool returns entries whose leading 16 bits never collide.
func distinctPool(n int, rng *rand.Rand) []shared.ProofEntry {
	pool := make([]shared.ProofEntry, n)
	for i := range pool {
		pool[i] = entry(uint32(i), (0x100+uint32(i))<<16, rng.Uint32(), rng.Uint32(), rng.Uint32(),
			rng.Uint32(), rng.Uint32(), rng.Uint32(), rng.Uint32())
	}
	return pool
}

func TestOptimizer_PairsIdenticalLeadingWord(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pool := distinctPool(64, rng)
	pool = append(pool,
		entry(100, 0xdeadbeef, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07),
		entry(200, 0xdeadbeef, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7),
	)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	o, err := NewOptimizer(4, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.Len(t, res.Levels, 1)
	require.Len(t, res.Levels[0], 1)

	c := res.Levels[0][0]
	require.Equal(t, []uint32{100, 200}, c.Indices)
	require.Zero(t, c.Value.Word(0))
	require.Equal(t, uint32(0xf0), c.Value.Word(1))
	require.Equal(t, []int{1}, res.Stats.Pairs)
	require.Equal(t, &c, res.Best())
}

func TestOptimizer_PairsOnKeyBits(t *testing.T) {
	pool := []shared.ProofEntry{
		entry(1, 0xabcd0001, 7),
		entry(2, 0xabcd0002, 9),
		entry(3, 0x12340003, 11),
	}

	o, err := NewOptimizer(2)
	require.NoError(t, err)
	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.Equal(t, DefaultKeyBits, res.KeyBits)
	require.Len(t, res.Levels, 1)
	require.Equal(t, []uint32{1, 2}, res.Levels[0][0].Indices)
	require.Equal(t, uint32(3), res.Levels[0][0].Value.Word(0))
	require.Equal(t, 30, res.Levels[0][0].Value.LeadingZeros())

	// Whole-word keys need the full word to match.
	o, err = NewOptimizer(2, WithKeyBits(32))
	require.NoError(t, err)
	res, err = o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.Empty(t, res.Levels)
	require.Equal(t, []int{0}, res.Stats.Pairs)
}

func TestOptimizer_QuadCancelsTwoWords(t *testing.T) {
	pool := []shared.ProofEntry{
		entry(1, 0xaaaa, 1, 0x11, 0x12),
		entry(2, 0xaaaa, 2, 0x21, 0x22),
		entry(3, 0xbbbb, 5, 0x31, 0x32),
		entry(4, 0xbbbb, 6, 0x41, 0x42),
	}

	o, err := NewOptimizer(4, WithKeyBits(32), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.Len(t, res.Levels, 2)
	require.Len(t, res.Levels[0], 2)

	best := res.Best()
	require.NotNil(t, best)
	require.Equal(t, []uint32{1, 2, 3, 4}, best.Indices)
	require.Zero(t, best.Value.Word(0))
	require.Zero(t, best.Value.Word(1))
	var all wideint.Int
	for _, e := range pool {
		all = wideint.Xor(all, e.Proof)
	}
	require.Equal(t, all, best.Value)

	require.Len(t, res.Levels[1], 1)
	require.Same(t, &res.Levels[1][0], best)
}

func TestOptimizer_StopsAtMaxIndices(t *testing.T) {
	pool := []shared.ProofEntry{
		entry(1, 0xaaaa, 1),
		entry(2, 0xaaaa, 2),
		entry(3, 0xbbbb, 5),
		entry(4, 0xbbbb, 6),
	}

	t.Run("single index", func(t *testing.T) {
		o, err := NewOptimizer(1, WithKeyBits(32))
		require.NoError(t, err)
		res, err := o.Run(context.Background(), pool)
		require.NoError(t, err)
		require.Empty(t, res.Levels)
		require.Nil(t, res.Best())
	})

	t.Run("three indices", func(t *testing.T) {
		o, err := NewOptimizer(3, WithKeyBits(32))
		require.NoError(t, err)
		res, err := o.Run(context.Background(), pool)
		require.NoError(t, err)
		require.Len(t, res.Levels, 1)
		for _, c := range res.Levels[0] {
			require.LessOrEqual(t, len(c.Indices), 3)
		}
	})
}

func TestOptimizer_MaxWords(t *testing.T) {
	pool := []shared.ProofEntry{
		entry(1, 0xaaaa, 1),
		entry(2, 0xaaaa, 2),
		entry(3, 0xbbbb, 5),
		entry(4, 0xbbbb, 6),
	}
	o, err := NewOptimizer(4, WithKeyBits(32), WithMaxWords(1))
	require.NoError(t, err)

	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.Len(t, res.Levels, 1)
}

func TestOptimizer_DegradesOnShortPool(t *testing.T) {
	o, err := NewOptimizer(4)
	require.NoError(t, err)

	for _, pool := range [][]shared.ProofEntry{nil, {entry(1, 7)}, distinctPool(16, rand.New(rand.NewSource(2)))} {
		res, err := o.Run(context.Background(), pool)
		require.NoError(t, err)
		require.Empty(t, res.Levels)
		require.Nil(t, res.Best())
	}
}

func TestOptimizer_MaxPerLevelKeepsLowest(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pool := make([]shared.ProofEntry, 1024)
	for i := range pool {
		pool[i] = entry(uint32(i), uint32(rng.Intn(16)), rng.Uint32(), rng.Uint32())
	}

	o, err := NewOptimizer(2, WithKeyBits(32), WithMaxPerLevel(10))
	require.NoError(t, err)

	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.Len(t, res.Levels, 1)
	require.Len(t, res.Levels[0], 10)
	require.Greater(t, res.Stats.Pairs[0], 10)
	require.Equal(t, []int{10}, res.Stats.Survivors)

	level := res.Levels[0]
	for i := 1; i < len(level); i++ {
		require.False(t, level[i].Value.Less(level[i-1].Value))
	}
}

func TestOptimizer_PairBudget(t *testing.T) {
	pool := make([]shared.ProofEntry, 256)
	for i := range pool {
		pool[i] = entry(uint32(i), 0x42, uint32(i))
	}

	o, err := NewOptimizer(2, WithMaxPerLevel(1))
	require.NoError(t, err)

	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.True(t, res.Stats.Truncated)
	require.Equal(t, []int{pairBudgetFactor}, res.Stats.Pairs)
}

func TestOptimizer_Canceled(t *testing.T) {
	o, err := NewOptimizer(4)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx, distinctPool(16, rand.New(rand.NewSource(4))))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewOptimizer_Validation(t *testing.T) {
	_, err := NewOptimizer(0)
	require.ErrorIs(t, err, shared.ErrConfiguration)

	_, err = NewOptimizer(4, WithMaxPerLevel(0))
	require.Error(t, err)

	_, err = NewOptimizer(4, WithMaxWords(wideint.Words+1))
	require.Error(t, err)

	_, err = NewOptimizer(4, WithKeyBits(0))
	require.Error(t, err)

	_, err = NewOptimizer(4, WithKeyBits(33))
	require.Error(t, err)

	_, err = NewOptimizer(4, WithLogger(nil))
	require.Error(t, err)
}

// With 2^16 uniform proofs and 16-bit keys, the expected number of colliding
// pairs is about n^2 / 2^17 = 2^15.
func TestOptimizer_BirthdayBound(t *testing.T) {
	if testing.Short() {
		t.Skip("long test")
	}

	const n = 1 << 16
	rng := rand.New(rand.NewSource(5))
	pool := make([]shared.ProofEntry, n)
	for i := range pool {
		pool[i] = entry(uint32(i), rng.Uint32(), rng.Uint32(), rng.Uint32(), rng.Uint32(),
			rng.Uint32(), rng.Uint32(), rng.Uint32(), rng.Uint32())
	}

	o, err := NewOptimizer(2, WithMaxPerLevel(1<<18), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.False(t, res.Stats.Truncated)
	require.Len(t, res.Stats.Pairs, 1)

	pairs := res.Stats.Pairs[0]
	require.GreaterOrEqual(t, pairs, 1<<14)
	require.LessOrEqual(t, pairs, 1<<18)
	t.Logf("pairs: %d", pairs)

	for _, c := range res.Levels[0] {
		require.Len(t, c.Indices, 2)
		require.Zero(t, c.Value.Window(0, DefaultKeyBits))
	}
}

func TestOptimizer_OraclePool(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1<<20), roundtest.WithMaxIndices(16))
	wo, err := oracle.New(oracle.WithRound(round))
	require.NoError(t, err)
	pool, err := wo.Positions(0, config.DefaultPoolSize-1)
	require.NoError(t, err)

	o, err := NewOptimizer(round.MaxIndices(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res, err := o.Run(context.Background(), pool)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Levels), 2)
	require.GreaterOrEqual(t, res.Stats.Pairs[0], 1<<13)
	require.LessOrEqual(t, res.Stats.Pairs[0], 1<<17)

	best := res.Best()
	require.NotNil(t, best)
	require.GreaterOrEqual(t, best.Value.LeadingZeros(), 2*DefaultKeyBits)
	require.LessOrEqual(t, len(best.Indices), int(round.MaxIndices()))

	var want wideint.Int
	for _, idx := range best.Indices {
		want = wideint.Xor(want, oracle.Proof(round, idx))
	}
	require.Equal(t, want, best.Value)
	t.Logf("levels: %d, pairs: %v, best: %v", len(res.Levels), res.Stats.Pairs, best)
}

func BenchmarkOptimizer(b *testing.B) {
	rng := rand.New(rand.NewSource(6))
	pool := make([]shared.ProofEntry, 1<<14)
	for i := range pool {
		pool[i] = entry(uint32(i), uint32(rng.Intn(1<<13)), uint32(rng.Intn(1<<13)), rng.Uint32(), rng.Uint32())
	}
	o, err := NewOptimizer(8)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := o.Run(context.Background(), pool)
		require.NoError(b, err)
	}
}
