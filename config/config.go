package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spacemeshos/smutil"

	"github.com/spacemeshos/bitecoin/wideint"
)

// Strategy selects how search tasks draw candidates.
type Strategy string

const (
	// StrategyLegacy draws MaxIndices indices from a small domain of
	// LegacyDomainFactor*MaxIndices indices.
	StrategyLegacy Strategy = "legacy"

	// StrategyPool draws subsets of any size up to MaxIndices from a precomputed pool.
	StrategyPool Strategy = "pool"

	// StrategyCancel seeds the search with cancellation optimizer output, then keeps
	// drawing from the pool.
	StrategyCancel Strategy = "cancel"
)

const (
	DefaultDataDirName = "bitecoin"

	DefaultStrategy           = StrategyCancel
	DefaultPoolSize           = 1 << 16
	DefaultMaxPerLevel        = 1 << 16
	DefaultMaxWords           = wideint.Words
	DefaultKeyBits            = 16
	DefaultLegacyDomainFactor = 10
	DefaultMaxCacheEntries    = 1 << 20
	DefaultSubmitMargin       = 50 * time.Millisecond
	DefaultPollInterval       = time.Millisecond
	DefaultLogRate            = 1 << 14

	MinPoolSize = 2
)

var DefaultDataDir = filepath.Join(smutil.GetUserHomeDirectory(), DefaultDataDirName)

// Config holds the engine parameters. Round parameters are not part of it, they
// arrive with every round.
type Config struct {
	DataDir string `mapstructure:"datadir"`

	// Workers is the number of concurrent search tasks.
	Workers  int      `mapstructure:"workers"`
	Strategy Strategy `mapstructure:"strategy"`
	Seed     uint64   `mapstructure:"seed"`

	PoolSize           uint32 `mapstructure:"pool-size"`
	MaxPerLevel        int    `mapstructure:"max-per-level"`
	MaxWords           int    `mapstructure:"max-words"`
	// KeyBits is the number of bits the cancellation optimizer cancels per
	// level. Pools of n proofs collide on about n^2/2^(KeyBits+1) pairs.
	KeyBits            int    `mapstructure:"key-bits"`
	LegacyDomainFactor uint32 `mapstructure:"legacy-domain-factor"`
	MaxCacheEntries    int    `mapstructure:"max-cache-entries"`

	// MemoryLimit caps the memory used for the proof pool, in bytes. 0 means the
	// currently free system memory.
	MemoryLimit uint64 `mapstructure:"memory-limit"`

	// ProviderID selects a compute provider for pool population. nil keeps the
	// work on the search workers.
	ProviderID *uint32 `mapstructure:"provider"`

	SubmitMargin time.Duration `mapstructure:"submit-margin"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	LogRate      uint64        `mapstructure:"log-rate"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir:            DefaultDataDir,
		Workers:            runtime.NumCPU(),
		Strategy:           DefaultStrategy,
		PoolSize:           DefaultPoolSize,
		MaxPerLevel:        DefaultMaxPerLevel,
		MaxWords:           DefaultMaxWords,
		KeyBits:            DefaultKeyBits,
		LegacyDomainFactor: DefaultLegacyDomainFactor,
		MaxCacheEntries:    DefaultMaxCacheEntries,
		SubmitMargin:       DefaultSubmitMargin,
		PollInterval:       DefaultPollInterval,
		LogRate:            DefaultLogRate,
	}
}

func (cfg *Config) Validate() error {
	if cfg.Workers < 1 {
		return fmt.Errorf("invalid `Workers`; expected: >= 1, given: %d", cfg.Workers)
	}

	switch cfg.Strategy {
	case StrategyLegacy, StrategyPool, StrategyCancel:
	default:
		return fmt.Errorf("invalid `Strategy`; expected: one of %v, %v, %v, given: %q",
			StrategyLegacy, StrategyPool, StrategyCancel, cfg.Strategy)
	}

	if cfg.Strategy != StrategyLegacy && cfg.PoolSize < MinPoolSize {
		return fmt.Errorf("invalid `PoolSize`; expected: >= %d, given: %d", MinPoolSize, cfg.PoolSize)
	}

	if cfg.MaxPerLevel < 1 {
		return fmt.Errorf("invalid `MaxPerLevel`; expected: >= 1, given: %d", cfg.MaxPerLevel)
	}

	if cfg.MaxWords < 1 || cfg.MaxWords > wideint.Words {
		return fmt.Errorf("invalid `MaxWords`; expected: 1..%d, given: %d", wideint.Words, cfg.MaxWords)
	}

	if cfg.KeyBits < 1 || cfg.KeyBits > 32 {
		return fmt.Errorf("invalid `KeyBits`; expected: 1..32, given: %d", cfg.KeyBits)
	}

	if cfg.LegacyDomainFactor < 1 {
		return fmt.Errorf("invalid `LegacyDomainFactor`; expected: >= 1, given: %d", cfg.LegacyDomainFactor)
	}

	if cfg.MaxCacheEntries < 0 {
		return fmt.Errorf("invalid `MaxCacheEntries`; expected: >= 0, given: %d", cfg.MaxCacheEntries)
	}

	if cfg.SubmitMargin < 0 {
		return fmt.Errorf("invalid `SubmitMargin`; expected: >= 0, given: %v", cfg.SubmitMargin)
	}

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("invalid `PollInterval`; expected: > 0, given: %v", cfg.PollInterval)
	}

	return nil
}
