package main

import (
	"os"

	"github.com/starfall-labs/relay-memory/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
