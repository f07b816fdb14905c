package initialization

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spacemeshos/bitecoin/config"
	"github.com/spacemeshos/bitecoin/internal/device"
	"github.com/spacemeshos/bitecoin/internal/roundtest"
	"github.com/spacemeshos/bitecoin/oracle"
	"github.com/spacemeshos/bitecoin/shared"
)

func testConfig() config.Config {
	cfg := *config.DefaultConfig()
	cfg.Workers = 4
	cfg.PoolSize = 256
	cfg.LogRate = 64
	return cfg
}

func requirePoolMatchesOracle(t *testing.T, round *shared.RoundContext, pool *Pool, n int) {
	t.Helper()
	require.Equal(t, n, pool.Len())
	for i, e := range pool.Entries {
		require.Equal(t, uint32(i), e.Index)
		require.Equal(t, oracle.Proof(round, e.Index), e.Proof)
	}
}

func TestNewInitializer_Validation(t *testing.T) {
	_, err := NewInitializer()
	require.ErrorIs(t, err, ErrRoundMissing)

	cfg := testConfig()
	cfg.Workers = 0
	_, err = NewInitializer(WithRound(roundtest.Round(t)), WithConfig(cfg))
	require.Error(t, err)

	_, err = NewInitializer(WithRound(roundtest.Round(t)), WithCache(nil))
	require.Error(t, err)
}

func TestInitialize_CPU(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1000))
	init, err := NewInitializer(
		WithConfig(testConfig()),
		WithRound(round),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)

	pool, err := init.Initialize(context.Background())
	require.NoError(t, err)
	requirePoolMatchesOracle(t, round, pool, 256)
	require.Equal(t, uint64(256), init.NumEntriesComputed())
}

func TestInitialize_PoolBoundedByDomain(t *testing.T) {
	round := roundtest.Round(t)
	init, err := NewInitializer(WithConfig(testConfig()), WithRound(round))
	require.NoError(t, err)

	pool, err := init.Initialize(context.Background())
	require.NoError(t, err)
	requirePoolMatchesOracle(t, round, pool, 40)
}

func TestInitialize_FillsCache(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1000))
	wo, err := oracle.New(oracle.WithRound(round))
	require.NoError(t, err)
	cache := NewCache(wo, 1000, zaptest.NewLogger(t))

	init, err := NewInitializer(WithConfig(testConfig()), WithRound(round), WithCache(cache))
	require.NoError(t, err)

	_, err = init.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 256, cache.Len())

	_, err = cache.Get(100)
	require.NoError(t, err)
	require.Zero(t, cache.Computations())
}

func TestInitialize_Device(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1000))
	cfg := testConfig()
	cpu := device.CPUProviderID()
	cfg.ProviderID = &cpu

	init, err := NewInitializer(WithConfig(cfg), WithRound(round), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	pool, err := init.Initialize(context.Background())
	require.NoError(t, err)
	requirePoolMatchesOracle(t, round, pool, 256)
}

type brokenBackend struct{ calls *atomic.Int32 }

func (b brokenBackend) ComputeBatch(context.Context, *shared.RoundContext, []uint32, []shared.ProofEntry) error {
	b.calls.Add(1)
	return errors.New("out of device memory")
}

func TestInitialize_DeviceFallsBackToCPU(t *testing.T) {
	var calls atomic.Int32
	p := device.Provider{ID: 77, Model: "broken", DeviceType: device.ClassGPU}
	require.NoError(t, device.Register(p, brokenBackend{calls: &calls}))
	t.Cleanup(func() { device.Unregister(p.ID) })

	round := roundtest.Round(t, roundtest.WithDomain(1000))
	cfg := testConfig()
	cfg.ProviderID = &p.ID

	init, err := NewInitializer(WithConfig(cfg), WithRound(round), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	pool, err := init.Initialize(context.Background())
	require.NoError(t, err)
	requirePoolMatchesOracle(t, round, pool, 256)
	require.Equal(t, int32(1), calls.Load())
}

func TestInitialize_UnknownProviderFallsBackToCPU(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1000))
	cfg := testConfig()
	id := uint32(4242)
	cfg.ProviderID = &id

	init, err := NewInitializer(WithConfig(cfg), WithRound(round), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	pool, err := init.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 256, pool.Len())
}

func TestInitialize_ShrinksPoolToMemory(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1000))
	init, err := NewInitializer(
		WithConfig(testConfig()),
		WithRound(round),
		WithLogger(zaptest.NewLogger(t)),
		withAvailableMemory(func() (uint64, error) { return 100 * config.EntrySize, nil }),
	)
	require.NoError(t, err)

	pool, err := init.Initialize(context.Background())
	require.NoError(t, err)
	requirePoolMatchesOracle(t, round, pool, 100)
}

func TestInitialize_MemoryLimit(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1000))
	cfg := testConfig()
	cfg.MemoryLimit = config.EntrySize

	init, err := NewInitializer(WithConfig(cfg), WithRound(round))
	require.NoError(t, err)

	_, err = init.Initialize(context.Background())
	require.ErrorIs(t, err, ErrPoolTooSmall)
	require.ErrorIs(t, err, shared.ErrResourceExhausted)
}

func TestInitialize_MemoryQueryFailure(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1000))
	init, err := NewInitializer(
		WithConfig(testConfig()),
		WithRound(round),
		withAvailableMemory(func() (uint64, error) { return 0, errors.New("no procfs") }),
	)
	require.NoError(t, err)

	pool, err := init.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 256, pool.Len())
}

func TestInitialize_Canceled(t *testing.T) {
	round := roundtest.Round(t, roundtest.WithDomain(1<<20))
	cfg := testConfig()
	cfg.PoolSize = 1 << 20

	init, err := NewInitializer(WithConfig(cfg), WithRound(round))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = init.Initialize(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
