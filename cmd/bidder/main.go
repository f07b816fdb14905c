package main

import (
	"os"

	"github.com/spacemeshos/bitecoin/cmd/bidder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
