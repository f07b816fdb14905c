package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/bid"
	"github.com/spacemeshos/bitecoin/config"
	"github.com/spacemeshos/bitecoin/proving"
)

var benchRound roundFlags

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare candidate strategies across worker counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		workers := []int{1}
		for w := 2; w <= runtime.NumCPU(); w *= 2 {
			workers = append(workers, w)
		}
		if last := workers[len(workers)-1]; last != runtime.NumCPU() {
			workers = append(workers, runtime.NumCPU())
		}

		strategies := []config.Strategy{config.StrategyLegacy, config.StrategyPool, config.StrategyCancel}
		data := make([][]string, 0, len(strategies)*len(workers))
		ctx := cmd.Context()

		for i, strategy := range strategies {
			for j, w := range workers {
				c := *cfg
				c.Strategy = strategy
				c.Workers = w

				s, err := proving.NewScheduler(
					proving.WithConfig(c),
					proving.WithLogger(zap.NewNop()),
					proving.WithSubmitter(bid.NewRecordingSubmitter(nil)),
				)
				if err != nil {
					return err
				}

				round, err := benchRound.round(benchRound.id+uint64(i*len(workers)+j), time.Now())
				if err != nil {
					return err
				}

				logger.Info("cli: bench case started", zap.String("strategy", string(strategy)), zap.Int("workers", w))
				start := time.Now()
				res, err := s.Run(ctx, round)
				if err != nil {
					return err
				}
				elapsed := time.Since(start)

				poolBytes := "-"
				if res.Strategy != config.StrategyLegacy {
					layout := config.DerivePoolLayout(c, round.DomainSize())
					poolBytes = bytefmt.ByteSize(layout.Bytes)
				}
				data = append(data, []string{
					string(strategy),
					string(res.Strategy),
					strconv.Itoa(w),
					poolBytes,
					strconv.FormatUint(res.Evaluated, 10),
					fmt.Sprintf("%.0f/s", float64(res.Evaluated)/elapsed.Seconds()),
					strconv.Itoa(res.Candidate.Value.LeadingZeros()),
					strconv.Itoa(len(res.Bid.Indices)),
					elapsed.Round(time.Millisecond).String(),
				})
			}
		}

		header := []string{"strategy", "used", "workers", "pool", "evaluated", "rate", "lz-bits", "indices", "elapsed"}
		report(header, data)
		return nil
	},
}

func report(header []string, data [][]string) {
	fmt.Printf("\n\nBENCHMARKS: max-indices=%v, domain=%v, steps=%v, duration=%v\n",
		benchRound.maxIndices, benchRound.domain, benchRound.steps, benchRound.duration)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetBorder(true)
	table.AppendBulk(data)
	table.Render()
}

func init() {
	benchRound.register(benchCmd.Flags())
	rootCmd.AddCommand(benchCmd)
}
