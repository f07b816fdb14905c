// Package cmd implements the bidder command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spacemeshos/smutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spacemeshos/bitecoin/config"
)

const defaultConfigFileName = "config.toml"

var (
	defaultConfigFile = filepath.Join(config.DefaultDataDir, defaultConfigFileName)

	cfgFile    string
	logLevel   string
	providerID int64

	cfg = config.DefaultConfig()
)

// configFlags are the persistent flags that map onto config.Config fields.
var configFlags = []string{
	"datadir",
	"workers",
	"strategy",
	"seed",
	"pool-size",
	"max-per-level",
	"max-words",
	"key-bits",
	"legacy-domain-factor",
	"max-cache-entries",
	"memory-limit",
	"submit-margin",
	"poll-interval",
	"log-rate",
}

var rootCmd = &cobra.Command{
	Use:          "bidder",
	Short:        "Search and submit bids for bitecoin exchange rounds",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute runs the command selected by the process arguments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	def := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", defaultConfigFile, "path to configuration file")
	flags.StringVar(&logLevel, "log-level", zapcore.InfoLevel.String(), "log level (debug, info, warn, error)")

	flags.String("datadir", def.DataDir, "directory bids are stored in")
	flags.Int("workers", def.Workers, "number of concurrent search tasks")
	flags.String("strategy", string(def.Strategy), "candidate strategy (legacy, pool, cancel)")
	flags.Uint64("seed", def.Seed, "base seed of the index samplers")
	flags.Uint32("pool-size", def.PoolSize, "number of proofs in the pool of a round")
	flags.Int("max-per-level", def.MaxPerLevel, "combinations kept per cancellation level")
	flags.Int("max-words", def.MaxWords, "leading words the cancellation optimizer tries to cancel")
	flags.Int("key-bits", def.KeyBits, "bits the cancellation optimizer cancels per level")
	flags.Uint32("legacy-domain-factor", def.LegacyDomainFactor, "legacy domain size as a multiple of the max number of indices")
	flags.Int("max-cache-entries", def.MaxCacheEntries, "proofs kept by the proof cache of a round")
	flags.Uint64("memory-limit", def.MemoryLimit, "memory available to the proof pool in bytes, 0 for the free system memory")
	flags.Int64Var(&providerID, "provider", -1, "compute provider used to populate the pool, -1 for none")
	flags.Duration("submit-margin", def.SubmitMargin, "time reserved before the deadline for submitting the bid")
	flags.Duration("poll-interval", def.PollInterval, "interval between compute provider polls")
	flags.Uint64("log-rate", def.LogRate, "pool entries between progress logs")
}

func loadConfig(cmd *cobra.Command) error {
	vip := viper.New()
	vip.SetConfigFile(smutil.GetCanonicalPath(cfgFile))
	if err := vip.ReadInConfig(); err != nil && cmd.Flags().Changed("config") {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Flags set on the command line take precedence over the config file.
	for _, name := range configFlags {
		if err := vip.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	loaded := config.DefaultConfig()
	if err := vip.Unmarshal(loaded); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.Flags().Changed("provider") {
		loaded.ProviderID = nil
		if providerID >= 0 {
			id := uint32(providerID)
			loaded.ProviderID = &id
		}
	}
	loaded.DataDir = smutil.GetCanonicalPath(loaded.DataDir)

	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			MessageKey:     "M",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapCfg.Build()
}
