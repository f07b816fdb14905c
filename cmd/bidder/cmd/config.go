package cmd

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/spacemeshos/bitecoin/internal/device"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		spew.Dump(cfg)
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Print the available compute providers",
	Run: func(cmd *cobra.Command, args []string) {
		spew.Dump(device.Providers())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(providersCmd)
}
