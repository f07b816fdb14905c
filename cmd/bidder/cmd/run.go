package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/bid"
	"github.com/spacemeshos/bitecoin/proving"
)

var (
	runRound  roundFlags
	runRounds int
	runOut    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run simulated rounds and submit a bid for each",
	Long: `Run announces simulated rounds one after the other, searches each until its
deadline and submits the best bid found. Bids are stored under <datadir>/bids,
or written to stdout in XDR form with --out=-.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		var submitter bid.Submitter
		switch runOut {
		case "-":
			submitter = bid.NewWriterSubmitter(os.Stdout, logger)
		case "":
			submitter = bid.NewFileSubmitter(filepath.Join(cfg.DataDir, "bids"), logger)
		default:
			submitter = bid.NewFileSubmitter(runOut, logger)
		}

		s, err := proving.NewScheduler(
			proving.WithConfig(*cfg),
			proving.WithLogger(logger),
			proving.WithSubmitter(submitter),
		)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		for i := 0; i < runRounds; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			round, err := runRound.round(runRound.id+uint64(i), time.Now())
			if err != nil {
				return err
			}
			res, err := s.Run(ctx, round)
			if err != nil {
				return fmt.Errorf("round %d: %w", round.RoundID(), err)
			}
			logger.Info("cli: round completed",
				zap.Uint64("round", round.RoundID()),
				zap.Uint32s("indices", res.Bid.Indices),
				zap.Stringer("value", res.Candidate.Value),
				zap.Int("leading_zero_bits", res.Candidate.Value.LeadingZeros()),
				zap.Uint64("evaluated", res.Evaluated),
				zap.Bool("deadline_miss", res.DeadlineMiss),
			)
			if err := s.Reset(); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	runRound.register(runCmd.Flags())
	runCmd.Flags().IntVar(&runRounds, "rounds", 1, "number of rounds to run")
	runCmd.Flags().StringVar(&runOut, "out", "", "directory bids are stored in, - for stdout")
	rootCmd.AddCommand(runCmd)
}
