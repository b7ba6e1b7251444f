package main

import (
	"os"

	"github.com/gnan700/splitledger/cmd/splitctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
