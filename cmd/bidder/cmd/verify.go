package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spacemeshos/bitecoin/bid"
	"github.com/spacemeshos/bitecoin/verifying"
)

var (
	verifyRound roundFlags
	verifyFile  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a stored bid against the parameters of its round",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyFile == "" {
			return errors.New("`--file` is required")
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		b, err := bid.ReadFile(verifyFile)
		if err != nil {
			return err
		}
		round, err := verifyRound.round(b.RoundID, time.Now())
		if err != nil {
			return err
		}
		if err := verifying.VerifyBid(round, b, verifying.WithLogger(logger)); err != nil {
			return fmt.Errorf("bid rejected: %w", err)
		}

		fmt.Printf("bid accepted: %v (%d leading zero bits)\n", b, b.Value().LeadingZeros())
		return nil
	},
}

func init() {
	verifyRound.register(verifyCmd.Flags())
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "bid file written by the run command")
	rootCmd.AddCommand(verifyCmd)
}
